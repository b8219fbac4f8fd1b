package calls

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a call length with whole-second precision.
// It travels as "HH:MM:SS" on the wire and as integer seconds in storage.
type Duration time.Duration

// DurationFromSeconds converts a non-negative second count.
func DurationFromSeconds(s int64) Duration {
	if s < 0 {
		s = 0
	}
	return Duration(time.Duration(s) * time.Second)
}

func (d Duration) Seconds() int64 {
	return int64(time.Duration(d) / time.Second)
}

// String renders HH:MM:SS. Hours grow past two digits rather than wrapping.
func (d Duration) String() string {
	s := d.Seconds()
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// ParseDuration reads HH:MM:SS, MM:SS or a plain second count.
func ParseDuration(v string) (Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrInvalidArgument)
	}
	parts := strings.Split(v, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidArgument, v)
	}
	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: duration %q", ErrInvalidArgument, v)
		}
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("%w: duration %q", ErrInvalidArgument, v)
		}
		total = total*60 + n
	}
	return DurationFromSeconds(total), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("%w: duration must be HH:MM:SS or seconds", ErrInvalidArgument)
		}
		*d = DurationFromSeconds(n)
		return nil
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
