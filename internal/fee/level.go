// Package fee provides per-asset network fee quotes: fee levels, the quote
// model, documented per-asset defaults, a fallback source, and a cache scoped
// to one pending transaction.
package fee

import (
	"strings"

	coreerr "github.com/mrz1836/coincore/pkg/errors"
)

// Level is a named tier selecting how aggressively a transaction bids for inclusion.
type Level int

// Fee levels.
const (
	// None is used by routes with a fixed network fee and no choice.
	None Level = iota
	Low
	Regular
	Priority
	// Custom uses a caller-supplied per-unit price.
	Custom
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Low:
		return "low"
	case Regular:
		return "regular"
	case Priority:
		return "priority"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name. An empty string selects Regular.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regular", "medium":
		return Regular, nil
	case "none":
		return None, nil
	case "low", "slow":
		return Low, nil
	case "priority", "fast":
		return Priority, nil
	case "custom":
		return Custom, nil
	default:
		return None, coreerr.WithDetails(coreerr.ErrInvalidInput, map[string]string{
			"fee_level": s,
			"allowed":   "none, low, regular, priority, custom",
		})
	}
}

// Set is an immutable set of fee levels.
type Set uint8

// NewSet builds a set from levels.
func NewSet(levels ...Level) Set {
	var s Set
	for _, l := range levels {
		s |= 1 << uint(l)
	}
	return s
}

// Contains reports whether the level is in the set.
func (s Set) Contains(l Level) bool {
	if l < None || l > Custom {
		return false
	}
	return s&(1<<uint(l)) != 0
}

// Levels returns the members in ascending order.
func (s Set) Levels() []Level {
	var out []Level
	for l := None; l <= Custom; l++ {
		if s.Contains(l) {
			out = append(out, l)
		}
	}
	return out
}

// String returns a comma-separated list of level names.
func (s Set) String() string {
	names := make([]string, 0, 5)
	for _, l := range s.Levels() {
		names = append(names, l.String())
	}
	return strings.Join(names, ",")
}
