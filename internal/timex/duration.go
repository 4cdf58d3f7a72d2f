// Package timex holds small time helpers shared by configuration code.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so JSON can carry either a Go duration
// string ("90s", "2m") or an integer number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// AddCalendarYear returns t moved forward by exactly one calendar year,
// keeping month, day and clock. Feb 29 rolls over to Mar 1.
func AddCalendarYear(t time.Time) time.Time {
	return t.AddDate(1, 0, 0)
}
