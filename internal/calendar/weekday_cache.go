package calendar

// WeekdayCacheSize is the number of years a WeekdayCache remembers.
const WeekdayCacheSize = 10

type yearWeekday struct {
	year    int
	weekday int
}

// WeekdayCache memoizes the weekday of January 1 for up to WeekdayCacheSize
// years. Once full, further years are computed on every call; entries are
// never evicted. The zero value is ready to use. A WeekdayCache is not safe
// for concurrent use.
type WeekdayCache struct {
	entries [WeekdayCacheSize]yearWeekday
	n       int
}

// Jan1Weekday returns the weekday (0=Sunday..6=Saturday) of January 1 of year.
func (c *WeekdayCache) Jan1Weekday(year int) int {
	for i := 0; i < c.n; i++ {
		if c.entries[i].year == year {
			return c.entries[i].weekday
		}
	}
	wd := NewDate(year, 1, 1).Weekday()
	if c.n < len(c.entries) {
		c.entries[c.n] = yearWeekday{year: year, weekday: wd}
		c.n++
	}
	return wd
}

// Len returns the number of cached years.
func (c *WeekdayCache) Len() int {
	return c.n
}
