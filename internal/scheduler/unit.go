package scheduler

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Unit is a time unit expressed as a multiplier of milliseconds.
type Unit int64

const (
	Milliseconds Unit = 1
	Seconds      Unit = 1000
	Minutes      Unit = 60 * Seconds
	Hours        Unit = 60 * Minutes
	Days         Unit = 24 * Hours
)

// orDefault maps the zero Unit to Seconds.
func (u Unit) orDefault() Unit {
	if u == 0 {
		return Seconds
	}
	return u
}

// Duration converts amount of u into a time.Duration. It reports false when
// the result is not finite or overflows.
func (u Unit) Duration(amount float64) (time.Duration, bool) {
	ns := amount * float64(u.orDefault()) * float64(time.Millisecond)
	if math.IsNaN(ns) || math.IsInf(ns, 0) || ns > math.MaxInt64 || ns < math.MinInt64 {
		return 0, false
	}
	return time.Duration(ns), true
}

func (u Unit) String() string {
	switch u {
	case Milliseconds:
		return "milliseconds"
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	case Days:
		return "days"
	case 0:
		return "unset"
	default:
		return fmt.Sprintf("unit(%dms)", int64(u))
	}
}

// Convert converts value expressed in from into to: value * from / to.
// Zero units are treated as Seconds.
func Convert(value float64, from, to Unit) float64 {
	return value * float64(from.orDefault()) / float64(to.orDefault())
}

// ParseUnit parses config spellings like "ms", "seconds", "min", "h", "days".
// An empty string yields Seconds.
func ParseUnit(raw string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return Seconds, nil
	case "ms", "millisecond", "milliseconds":
		return Milliseconds, nil
	case "s", "sec", "second", "seconds":
		return Seconds, nil
	case "m", "min", "minute", "minutes":
		return Minutes, nil
	case "h", "hour", "hours":
		return Hours, nil
	case "d", "day", "days":
		return Days, nil
	default:
		return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidArgument, raw)
	}
}
