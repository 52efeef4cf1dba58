// Package feed turns timetable sequences into tabular output.
//
// A Source flattens calendar rows into column values in Schema order; a Sink
// consumes those values one row at a time. Run connects the two.
package feed

import (
	"fmt"

	"github.com/username/timetable/internal/calendar"
)

// ColumnType is the logical type of a feed column.
type ColumnType int

const (
	TypeInt32 ColumnType = iota + 1 // value is int32
	TypeDate                        // value is calendar.Date
	TypeBool                        // value is bool
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt32:
		return "int32"
	case TypeDate:
		return "date"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column describes one field of a feed.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered column list of a feed. Name doubles as the table name
// in relational sinks.
type Schema struct {
	Name    string
	Columns []Column
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

var (
	// MonthlySchema is the column layout of MonthRow.
	MonthlySchema = Schema{
		Name: "dim_month",
		Columns: []Column{
			{"uid", TypeInt32},
			{"year", TypeInt32},
			{"quarter", TypeInt32},
			{"month", TypeInt32},
			{"days_in_month", TypeInt32},
			{"ordinal", TypeInt32},
		},
	}

	// DailySchema is the column layout of DayRow.
	DailySchema = Schema{
		Name: "dim_day",
		Columns: []Column{
			{"uid", TypeInt32},
			{"date", TypeDate},
			{"year", TypeInt32},
			{"quarter", TypeInt32},
			{"month", TypeInt32},
			{"day", TypeInt32},
			{"iso_week", TypeInt32},
			{"iso_weekday", TypeInt32},
			{"day_of_year", TypeInt32},
			{"is_weekend", TypeBool},
			{"ordinal", TypeInt32},
		},
	}
)

// MonthValues flattens r in MonthlySchema order.
func MonthValues(r calendar.MonthRow) []any {
	return []any{
		int32(r.UID),
		int32(r.Year),
		int32(r.Quarter),
		int32(r.Month),
		int32(r.DaysInMonth),
		int32(r.Ordinal),
	}
}

// DayValues flattens r in DailySchema order.
func DayValues(r calendar.DayRow) []any {
	return []any{
		int32(r.UID),
		r.Date,
		int32(r.Year),
		int32(r.Quarter),
		int32(r.Month),
		int32(r.Day),
		int32(r.ISOWeek),
		int32(r.ISOWeekday),
		int32(r.DayOfYear),
		r.IsWeekend,
		int32(r.Ordinal),
	}
}
