package domain

import (
	"strings"
	"time"
)

// ValueSet is an ordered list of unique labels for one experimental factor
// (e.g. condition types or object types).
type ValueSet []string

// Validate checks that the set is non-empty, contains no blank values and no
// duplicates.
func (v ValueSet) Validate(name string) error {
	if len(v) == 0 {
		return Validationf("%s must contain at least one value", name)
	}
	seen := make(map[string]struct{}, len(v))
	for _, val := range v {
		if strings.TrimSpace(val) == "" {
			return Validationf("%s contains a blank value", name)
		}
		if _, dup := seen[val]; dup {
			return Validationf("%s contains duplicate value %q", name, val)
		}
		seen[val] = struct{}{}
	}
	return nil
}

// Contains reports whether val is a member of the set.
func (v ValueSet) Contains(val string) bool {
	for _, candidate := range v {
		if candidate == val {
			return true
		}
	}
	return false
}

// ConditionSlot pairs one factor-A value with one factor-B value at a fixed
// position within an order. Immutable once created.
type ConditionSlot struct {
	Position      int    `json:"position"`
	ConditionType string `json:"condition_type"`
	ObjectType    string `json:"object_type"`
}

// Order is one complete, balanced condition/object sequence for a full
// experiment run. Orders are immutable after generation except for the usage
// bookkeeping fields, which only the order store mutates.
type Order struct {
	ID         string          `json:"order_id"`
	Sequence   []ConditionSlot `json:"sequence"`
	UsageCount int             `json:"usage_count"`
	CreatedAt  time.Time       `json:"created_at"`
	LastUsed   *time.Time      `json:"last_used,omitempty"`
}

// Clone returns a deep copy so store internals never leak by pointer.
func (o Order) Clone() Order {
	cp := o
	cp.Sequence = make([]ConditionSlot, len(o.Sequence))
	copy(cp.Sequence, o.Sequence)
	if o.LastUsed != nil {
		t := *o.LastUsed
		cp.LastUsed = &t
	}
	return cp
}
