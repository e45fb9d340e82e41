// Package watermark persists the single timestamp that marks which alarms have
// already been fetched from the alarm service.
package watermark

import (
	"context"
	"strconv"
	"strings"
)

// Store is a durable holder for one nanosecond epoch value.
//
// Load reports (0, nil) when nothing has been stored yet or the stored value
// cannot be parsed. An error is only returned when the backing medium itself
// could not be read; callers treat that as zero as well.
type Store interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, nanos int64) error
}

// parseNanos reads the first line of a stored value. Anything that is not a
// base-10 integer yields false.
func parseNanos(raw string) (int64, bool) {
	line, _, _ := strings.Cut(raw, "\n")
	n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatNanos(nanos int64) string {
	return strconv.FormatInt(nanos, 10)
}
