package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// usageError renders the command's expected shape back at the user.
type usageError struct {
	usage string
}

func (e *usageError) Error() string { return "usage: " + e.usage }

func usagef(format string, args ...any) error {
	return &usageError{usage: fmt.Sprintf(format, args...)}
}

func isUsage(err error) bool {
	var u *usageError
	return errors.As(err, &u)
}

// parseWhen accepts "+NN" (minutes from now) or "HH:MM" on today's date
// in tz. A clock time already passed rolls to tomorrow.
func parseWhen(raw string, now time.Time, tz *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "+") {
		mins, err := strconv.Atoi(raw[1:])
		if err != nil || mins <= 0 {
			return time.Time{}, fmt.Errorf("bad duration %q, want +minutes", raw)
		}
		return now.Add(time.Duration(mins) * time.Minute), nil
	}
	clock, err := time.Parse("15:04", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q, want HH:MM or +minutes", raw)
	}
	local := now.In(tz)
	t := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, tz)
	if t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parseRaidID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad raid id %q", raw)
	}
	return id, nil
}
