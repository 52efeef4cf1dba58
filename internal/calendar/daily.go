package calendar

import (
	"fmt"
	"iter"

	"github.com/username/timetable/pkg/dateutil"
)

// DefaultWindowDays is the distance from today to each default bound of a
// daily sequence.
const DefaultWindowDays = 100

// Clock supplies the current date for defaulted daily bounds.
type Clock interface {
	Today() Date
}

// SystemClock reads today's date from the host clock in local time.
type SystemClock struct{}

// Today implements Clock.
func (SystemClock) Today() Date {
	return DateFromTime(dateutil.Today())
}

// FixedClock always reports the same date.
type FixedClock Date

// Today implements Clock.
func (c FixedClock) Today() Date {
	return Date(c)
}

// DailySequence yields one DayRow per day of an inclusive date range.
type DailySequence struct {
	start, end Date

	current   Date
	ordinal   int
	total     int
	processed int
	state     state
	err       error
	weekdays  WeekdayCache
}

// OpenDaily is OpenDailyWindow with DefaultWindowDays.
func OpenDaily(start, end *Date, clock Clock) (*DailySequence, error) {
	return OpenDailyWindow(start, end, clock, DefaultWindowDays)
}

// OpenDailyWindow returns a sequence over every day from start to end. A nil
// bound defaults to windowDays before (start) or after (end) clock's today;
// a nil clock means SystemClock.
func OpenDailyWindow(start, end *Date, clock Clock, windowDays int) (*DailySequence, error) {
	if windowDays < 0 {
		return nil, fmt.Errorf("%w: negative window of %d days", ErrInvalidRange, windowDays)
	}
	lo, hi := resolveBounds(start, end, clock, windowDays)
	if lo > hi {
		return nil, fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidRange, lo, hi)
	}
	return &DailySequence{
		start:   lo,
		end:     hi,
		current: lo,
		ordinal: 1,
		total:   dayCount(lo, hi),
	}, nil
}

// dayCount is the number of rows up to and including the first date outside
// [MinDate, MaxDate], so wide ranges cannot wrap and an out-of-range date is
// always reached by Next.
func dayCount(lo, hi Date) int {
	if !lo.Valid() {
		return 1
	}
	if hi > MaxDate {
		return (MaxDate + 1).Sub(lo) + 1
	}
	return hi.Sub(lo) + 1
}

func resolveBounds(start, end *Date, clock Clock, windowDays int) (Date, Date) {
	if start != nil && end != nil {
		return *start, *end
	}
	if clock == nil {
		clock = SystemClock{}
	}
	today := clock.Today()
	lo, hi := today.AddDays(-windowDays), today.AddDays(windowDays)
	if start != nil {
		lo = *start
	}
	if end != nil {
		hi = *end
	}
	return lo, hi
}

// Bounds returns the resolved date range.
func (s *DailySequence) Bounds() (start, end Date) {
	return s.start, s.end
}

// Len returns the total number of rows in the sequence. For a range crossing
// [MinDate, MaxDate] it counts up to the row that fails.
func (s *DailySequence) Len() int {
	return s.total
}

// Remaining returns the number of rows not yet produced.
func (s *DailySequence) Remaining() int {
	if s.state == stateFailed {
		return 0
	}
	return s.total - s.processed
}

// Next returns the next row. ok is false once the sequence is exhausted, and
// stays false on later calls. Reaching a date outside [MinDate, MaxDate] fails
// the sequence with ErrDateRangeOverflow; the same error is returned from then on.
func (s *DailySequence) Next() (row DayRow, ok bool, err error) {
	switch s.state {
	case stateFailed:
		return DayRow{}, false, s.err
	case stateExhausted:
		return DayRow{}, false, nil
	}
	if s.processed >= s.total {
		s.state = stateExhausted
		return DayRow{}, false, nil
	}

	year, month, day, err := s.current.YMD()
	if err != nil {
		s.state = stateFailed
		s.err = err
		return DayRow{}, false, err
	}
	weekday := s.current.Weekday()
	isoWeekday := weekday
	if weekday == 0 {
		isoWeekday = 7
	}
	doy := DayOfYear(year, month, day)
	jan1 := s.weekdays.Jan1Weekday(year)

	row = DayRow{
		UID:        DayUID(s.current),
		Date:       s.current,
		Year:       year,
		Quarter:    QuarterOfMonth(month),
		Month:      month,
		Day:        day,
		ISOWeek:    ISOWeek(doy, jan1),
		ISOWeekday: isoWeekday,
		DayOfYear:  doy,
		IsWeekend:  weekday == 0 || weekday == 6,
		Ordinal:    s.ordinal,
	}
	s.ordinal++
	s.current++
	s.processed++
	return row, true, nil
}

// All returns an iterator over the remaining rows. Iteration stops after the
// first error.
func (s *DailySequence) All() iter.Seq2[DayRow, error] {
	return func(yield func(DayRow, error) bool) {
		for {
			row, ok, err := s.Next()
			if err != nil {
				yield(DayRow{}, err)
				return
			}
			if !ok || !yield(row, nil) {
				return
			}
		}
	}
}
