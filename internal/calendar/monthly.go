package calendar

import (
	"fmt"
	"iter"
)

// MonthlySequence yields one MonthRow per month of an inclusive year range.
type MonthlySequence struct {
	startYear, endYear int

	year, month int
	ordinal     int
	total       int
	processed   int
	state       state
	err         error
}

// OpenMonthly returns a sequence over every month from January of startYear
// to December of endYear.
func OpenMonthly(startYear, endYear int) (*MonthlySequence, error) {
	if startYear > endYear {
		return nil, fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidRange, startYear, endYear)
	}
	s := &MonthlySequence{
		startYear: startYear,
		endYear:   endYear,
		year:      startYear,
		month:     1,
		ordinal:   1,
		total:     monthCount(startYear, endYear),
	}
	return s, nil
}

// monthCount is the number of rows up to and including the first month of
// the first year outside [MinYear, MaxYear], so wide ranges cannot wrap and
// an out-of-range year is always reached by Next.
func monthCount(startYear, endYear int) int {
	if startYear < MinYear || startYear > MaxYear {
		return 1
	}
	if endYear > MaxYear {
		return (MaxYear-startYear+1)*12 + 1
	}
	return (endYear - startYear + 1) * 12
}

// Bounds returns the requested year range.
func (s *MonthlySequence) Bounds() (startYear, endYear int) {
	return s.startYear, s.endYear
}

// Len returns the total number of rows in the sequence. For a range crossing
// [MinYear, MaxYear] it counts up to the row that fails.
func (s *MonthlySequence) Len() int {
	return s.total
}

// Remaining returns the number of rows not yet produced.
func (s *MonthlySequence) Remaining() int {
	if s.state == stateFailed {
		return 0
	}
	return s.total - s.processed
}

// Next returns the next row. ok is false once the sequence is exhausted, and
// stays false on later calls. A year outside [MinYear, MaxYear] fails the
// sequence with ErrDateRangeOverflow; the same error is returned from then on.
func (s *MonthlySequence) Next() (row MonthRow, ok bool, err error) {
	switch s.state {
	case stateFailed:
		return MonthRow{}, false, s.err
	case stateExhausted:
		return MonthRow{}, false, nil
	}
	if s.processed >= s.total {
		s.state = stateExhausted
		return MonthRow{}, false, nil
	}
	if s.year < MinYear || s.year > MaxYear {
		s.state = stateFailed
		s.err = fmt.Errorf("%w: year %d outside [%d, %d]", ErrDateRangeOverflow, s.year, MinYear, MaxYear)
		return MonthRow{}, false, s.err
	}

	row = MonthRow{
		UID:         MonthUID(s.year, s.month),
		Year:        s.year,
		Quarter:     QuarterOfMonth(s.month),
		Month:       s.month,
		DaysInMonth: DaysInMonth(s.year, s.month),
		Ordinal:     s.ordinal,
	}
	s.ordinal++

	s.month++
	if s.month > 12 {
		s.month = 1
		s.year++
	}
	s.processed++
	return row, true, nil
}

// All returns an iterator over the remaining rows. Iteration stops after the
// first error.
func (s *MonthlySequence) All() iter.Seq2[MonthRow, error] {
	return func(yield func(MonthRow, error) bool) {
		for {
			row, ok, err := s.Next()
			if err != nil {
				yield(MonthRow{}, err)
				return
			}
			if !ok || !yield(row, nil) {
				return
			}
		}
	}
}
