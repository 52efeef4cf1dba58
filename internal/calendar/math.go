package calendar

import "fmt"

// Lookup tables are indexed by month (1-12); index 0 is unused.
var (
	daysPerMonth    = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	monthToQuarter  = [13]int{0, 1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	daysBeforeMonth = [13]int{0, 0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}
)

// IsLeapYear reports whether year is a leap year in the proleptic Gregorian calendar.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInMonth returns the number of days in the given month. It panics if
// month is not in 1-12.
func DaysInMonth(year, month int) int {
	mustMonth(month)
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return daysPerMonth[month]
}

// QuarterOfMonth returns the quarter (1-4) containing month.
func QuarterOfMonth(month int) int {
	mustMonth(month)
	return monthToQuarter[month]
}

// DayOfYear returns the 1-based ordinal of the date within its year.
func DayOfYear(year, month, day int) int {
	mustMonth(month)
	doy := daysBeforeMonth[month] + day
	if month > 2 && IsLeapYear(year) {
		doy++
	}
	return doy
}

// ISOWeek returns the week number of a day given its day of year and the
// weekday of January 1 (0=Sunday..6=Saturday). Weeks start on Monday and the
// week containing January 1 is week 1. Days at the turn of the year are not
// moved into the neighbouring year's weeks, so this differs from ISO 8601
// for some late December and early January dates.
func ISOWeek(dayOfYear, jan1Weekday int) int {
	w := jan1Weekday - 1
	if jan1Weekday == 0 {
		w = 6
	}
	return ((dayOfYear + w - 1) / 7) + 1
}

func mustMonth(month int) {
	if month < 1 || month > 12 {
		panic(fmt.Sprintf("calendar: month %d out of range 1-12", month))
	}
}
