package oracle

import (
	"sort"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
)

func sortStrings(s []string) { sort.Strings(s) }

func sortByDate[T any](rows []T, date func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool { return date(rows[i]).Before(date(rows[j])) })
}

// dedupeDays drops rows that repeat an already seen day. rows must be
// sorted by date.
func dedupeDays[T any](rows []T, date func(T) time.Time) []T {
	out := rows[:0:0]
	var last time.Time
	for i, r := range rows {
		d := domain.Day(date(r))
		if i > 0 && d.Equal(last) {
			continue
		}
		out = append(out, r)
		last = d
	}
	return out
}

func sortSlice[T any](s []T, less func(a, b T) bool) {
	sort.SliceStable(s, func(i, j int) bool { return less(s[i], s[j]) })
}
