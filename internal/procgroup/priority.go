package procgroup

import (
	"fmt"
	"strings"
)

// PriorityClass is the scheduling policy applied to every member of a group.
type PriorityClass int

// Priority classes, lowest to highest.
const (
	PriorityIdle PriorityClass = iota + 1
	PriorityBelowNormal
	PriorityNormal
	PriorityAboveNormal
	PriorityHigh
	PriorityRealtime
)

var priorityNames = map[PriorityClass]string{
	PriorityIdle:        "idle",
	PriorityBelowNormal: "below_normal",
	PriorityNormal:      "normal",
	PriorityAboveNormal: "above_normal",
	PriorityHigh:        "high",
	PriorityRealtime:    "realtime",
}

// ParsePriorityClass accepts snake_case, kebab-case and PascalCase spellings
// ("below_normal", "below-normal", "BelowNormal").
func ParsePriorityClass(s string) (PriorityClass, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(s))
	for pc, name := range priorityNames {
		if strings.ReplaceAll(name, "_", "") == key {
			return pc, nil
		}
	}
	return 0, fmt.Errorf("unknown priority class %q", s)
}

func (p PriorityClass) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PriorityClass(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p PriorityClass) MarshalText() ([]byte, error) {
	if _, ok := priorityNames[p]; !ok {
		return nil, fmt.Errorf("invalid priority class %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PriorityClass) UnmarshalText(text []byte) error {
	pc, err := ParsePriorityClass(string(text))
	if err != nil {
		return err
	}
	*p = pc
	return nil
}

// niceValue maps a class onto a unix nice value. Realtime is the strongest
// nice value rather than a realtime scheduling policy.
func (p PriorityClass) niceValue() int {
	switch p {
	case PriorityIdle:
		return 19
	case PriorityBelowNormal:
		return 10
	case PriorityAboveNormal:
		return -5
	case PriorityHigh:
		return -10
	case PriorityRealtime:
		return -20
	default:
		return 0
	}
}
