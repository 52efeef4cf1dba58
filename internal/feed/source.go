package feed

import "github.com/username/timetable/internal/calendar"

// Source yields feed rows as column values in Schema order.
type Source interface {
	Schema() Schema
	// Len is the total number of rows the source produces.
	Len() int
	// Next returns the next row; ok is false once the source is exhausted.
	Next() (values []any, ok bool, err error)
}

type monthlySource struct {
	seq *calendar.MonthlySequence
}

// MonthlySource adapts a monthly sequence to a Source.
func MonthlySource(seq *calendar.MonthlySequence) Source {
	return monthlySource{seq: seq}
}

func (s monthlySource) Schema() Schema { return MonthlySchema }

func (s monthlySource) Len() int { return s.seq.Len() }

func (s monthlySource) Next() ([]any, bool, error) {
	row, ok, err := s.seq.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	return MonthValues(row), true, nil
}

type dailySource struct {
	seq *calendar.DailySequence
}

// DailySource adapts a daily sequence to a Source.
func DailySource(seq *calendar.DailySequence) Source {
	return dailySource{seq: seq}
}

func (s dailySource) Schema() Schema { return DailySchema }

func (s dailySource) Len() int { return s.seq.Len() }

func (s dailySource) Next() ([]any, bool, error) {
	row, ok, err := s.seq.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	return DayValues(row), true, nil
}
