package session

import (
	"strconv"
	"strings"
)

const (
	secsMinute = 60
	secsHour   = 3600
	secsDay    = 86400
	secsWeek   = 7 * secsDay
	secsMonth  = 30 * secsDay
	secsYear   = 365 * secsDay
)

var formatUnits = []struct {
	secs   uint64
	suffix string
}{
	{secsYear, "y"},
	{secsMonth, "m"},
	{secsWeek, "w"},
	{secsDay, "d"},
	{secsHour, "h"},
	{secsMinute, "min"}, // "m" is months
}

// FormatSeconds renders a duration as its nonzero units in descending order,
// e.g. 3605 -> "1h 5s", 90000 -> "1d 1h". Zero renders as "0s".
func FormatSeconds(total uint32) string {
	if total == 0 {
		return "0s"
	}
	rem := uint64(total)
	var parts []string
	for _, u := range formatUnits {
		if n := rem / u.secs; n > 0 {
			parts = append(parts, strconv.FormatUint(n, 10)+u.suffix)
		}
		rem %= u.secs
	}
	if rem > 0 {
		parts = append(parts, strconv.FormatUint(rem, 10)+"s")
	}
	return strings.Join(parts, " ")
}
