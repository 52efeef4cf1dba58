// Package calendar computes the monthly and daily timetable dimension rows.
//
// Sequences are pull iterators: each call to Next advances the cursor by one
// month or one day and returns a fully computed row. A sequence holds O(1)
// state regardless of the size of its range and shares nothing with other
// sequences, so independent sequences may be driven from different goroutines.
// A single sequence must not be used concurrently.
package calendar

import "errors"

var (
	// ErrInvalidRange is returned when a start bound lies after its end bound.
	ErrInvalidRange = errors.New("invalid range")

	// ErrDateRangeOverflow is returned when a sequence reaches a date outside
	// [MinDate, MaxDate]. The sequence is failed from then on.
	ErrDateRangeOverflow = errors.New("date out of range")
)

// Surrogate id anchors. Both ids are offsets from 1950-01-01 so they do not
// depend on the requested range.
const (
	EpochYear = 1950

	monthUIDBase = 20000
	dayUIDBase   = 2000000
)

// MonthRow is one row of the monthly timetable.
type MonthRow struct {
	UID         int `json:"uid"`
	Year        int `json:"year"`
	Quarter     int `json:"quarter"`
	Month       int `json:"month"`
	DaysInMonth int `json:"days_in_month"`
	Ordinal     int `json:"ordinal"`
}

// DayRow is one row of the daily timetable.
type DayRow struct {
	UID        int  `json:"uid"`
	Date       Date `json:"date"`
	Year       int  `json:"year"`
	Quarter    int  `json:"quarter"`
	Month      int  `json:"month"`
	Day        int  `json:"day"`
	ISOWeek    int  `json:"iso_week"`
	ISOWeekday int  `json:"iso_weekday"`
	DayOfYear  int  `json:"day_of_year"`
	IsWeekend  bool `json:"is_weekend"`
	Ordinal    int  `json:"ordinal"`
}

// MonthUID returns the surrogate id of the given month.
func MonthUID(year, month int) int {
	return monthUIDBase + (year-EpochYear)*12 + (month - 1)
}

// DayUID returns the surrogate id of the given date.
func DayUID(d Date) int {
	return dayUIDBase + int(d-epochDate)
}

// state is shared by both sequence kinds.
type state int

const (
	stateActive state = iota
	stateExhausted
	stateFailed
)
