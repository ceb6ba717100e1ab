// Package timex provides a JSON-friendly time.Duration wrapper for
// config files, accepting either a Go duration string ("1m30s") or a
// bare integer number of nanoseconds — the two shapes a hand-edited or
// generated JSON config is likely to carry.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration with JSON (un)marshalling that accepts
// both string ("1m") and numeric (nanoseconds) representations.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("timex: parse duration %q: %w", v, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(v)
	default:
		return fmt.Errorf("timex: unsupported duration JSON value %v", raw)
	}
	return nil
}
