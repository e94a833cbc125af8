package streak

import "time"

// CalendarDay truncates t to local midnight in loc.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysBetween returns the number of calendar days from a to b in loc.
// It is computed from the Y/M/D triple so 23h and 25h DST days count as one.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DaysBetween(a, b, loc) == 0
}
