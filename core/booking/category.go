package booking

import "fmt"

// Category identifies one lesson or test type tracked independently by the
// watcher. Each category carries its own calendar state and quota; the engine
// never mutates one category based on another.
type Category int

const (
	Simulator Category = iota
	Practical
	BasicTheory
	RidingTheory
	FinalTheory
	PracticalTest
)

// Categories returns every known category in the fixed processing order used
// by the monitoring cycle.
func Categories() []Category {
	return []Category{Simulator, Practical, BasicTheory, RidingTheory, FinalTheory, PracticalTest}
}

// String returns the short name used in configuration and log output.
func (c Category) String() string {
	switch c {
	case Simulator:
		return "simulator"
	case Practical:
		return "practical"
	case BasicTheory:
		return "btt"
	case RidingTheory:
		return "rtt"
	case FinalTheory:
		return "ftt"
	case PracticalTest:
		return "pt"
	default:
		return "unknown"
	}
}

// ParseCategory converts a configuration name into a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}
