package calendar

import (
	"fmt"
	"time"

	"github.com/username/timetable/pkg/dateutil"
)

// Date is a calendar day expressed as a Julian day number in the proleptic
// Gregorian calendar. Consecutive days differ by one.
type Date int

// Representable range. MinDate is Julian day 0 (24 Nov 4714 BC, written as
// astronomical year -4713).
const (
	MinYear = -4713
	MaxYear = 9999

	MinDate Date = 0
	MaxDate Date = 5373484 // 9999-12-31

	epochDate Date = 2433283 // 1950-01-01
)

// NewDate returns the Date for the given proleptic Gregorian components. It
// panics if month is not in 1-12; day is not range checked and overflows into
// the following month.
func NewDate(year, month, day int) Date {
	mustMonth(month)
	y, m := year, month
	if m > 2 {
		m++
		y += 4800
	} else {
		m += 13
		y += 4799
	}
	century := y / 100
	julian := y*365 - 32167
	julian += y/4 - century + century/4
	julian += 7834*m/256 + day
	return Date(julian)
}

// DateFromTime returns the Date of t's calendar day in t's location.
func DateFromTime(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date in any of the layouts accepted by dateutil.ParseDate.
func ParseDate(s string) (Date, error) {
	t, err := dateutil.ParseDate(s)
	if err != nil {
		return 0, err
	}
	return DateFromTime(t), nil
}

// Valid reports whether d lies within [MinDate, MaxDate].
func (d Date) Valid() bool {
	return d >= MinDate && d <= MaxDate
}

// YMD decomposes d into year, month and day.
func (d Date) YMD() (year, month, day int, err error) {
	if !d.Valid() {
		return 0, 0, 0, fmt.Errorf("%w: julian day %d outside [%d, %d]", ErrDateRangeOverflow, int(d), int(MinDate), int(MaxDate))
	}
	year, month, day = d.ymd()
	return year, month, day, nil
}

// ymd is valid for d >= 0.
func (d Date) ymd() (year, month, day int) {
	julian := int(d) + 32044
	quad := julian / 146097
	extra := (julian-quad*146097)*4 + 3
	julian += 60 + quad*3 + extra/146097
	quad = julian / 1461
	julian -= quad * 1461
	y := julian * 4 / 1461
	if y != 0 {
		julian = (julian+305)%365 + 123
	} else {
		julian = (julian+306)%366 + 123
	}
	y += quad * 4
	year = y - 4800
	quad = julian * 2141 / 65536
	day = julian - 7834*quad/256
	month = (quad+10)%12 + 1
	return year, month, day
}

// Weekday returns the day of the week, 0=Sunday..6=Saturday.
func (d Date) Weekday() int {
	w := (int(d) + 1) % 7
	if w < 0 {
		w += 7
	}
	return w
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return d + Date(n)
}

// Sub returns the number of days from e to d.
func (d Date) Sub(e Date) int {
	return int(d - e)
}

// Time returns midnight UTC of d, or the zero Time if d is not Valid.
func (d Date) Time() time.Time {
	if !d.Valid() {
		return time.Time{}
	}
	y, m, day := d.ymd()
	return time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if !d.Valid() {
		return fmt.Sprintf("julian(%d)", int(d))
	}
	y, m, day := d.ymd()
	return fmt.Sprintf("%04d-%02d-%02d", y, m, day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: julian day %d", ErrDateRangeOverflow, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
