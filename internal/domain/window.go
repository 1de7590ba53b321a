package domain

import "time"

// Window is an inclusive range of calendar days in UTC.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LookbackWindow covers days days ending on asOf.
func LookbackWindow(asOf time.Time, days int) Window {
	if days < 1 {
		days = 1
	}
	to := Day(asOf)
	return Window{From: to.AddDate(0, 0, -(days - 1)), To: to}
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(w.From)) && !d.After(Day(w.To))
}

// Days is the number of calendar days covered.
func (w Window) Days() int {
	return DaysBetween(w.From, w.To) + 1
}

// DaysBetween counts whole days from a to b, negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
