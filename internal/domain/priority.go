package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority is an ordinal notification priority. Higher values are more urgent.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// ParsePriority accepts a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = 0
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		// Numeric form is accepted for clients that send the ordinal.
		var n int
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return fmt.Errorf("%w: priority must be a string or number", ErrValidation)
		}
		if !Priority(n).Valid() {
			return fmt.Errorf("%w: unknown priority %d", ErrValidation, n)
		}
		*p = Priority(n)
		return nil
	}

	parsed, err := ParsePriority(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
