package orders

import (
	"fmt"
	"time"

	"github.com/exolab/vrsupervisor/pkg/domain"
)

// Generator builds balanced order sets. It is stateless apart from the
// injectable clock; identical inputs always produce identical slot content.
type Generator struct {
	now func() time.Time
}

// Option configures the Generator.
type Option func(*Generator)

// WithClock overrides the creation-timestamp source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the full balanced set of N*N orders for the given value
// sets. Both sets must be non-empty, duplicate-free, blank-free and of equal
// length; anything else is a domain.ValidationError.
//
// Order IDs are assigned sequentially as ORD-0001, ORD-0002, ... in a fixed
// enumeration: object-set rotation outermost, condition-set rotation
// innermost. Slot p of order (j, k) pairs conditions[(p+k)%N] with
// objects[(p+j)%N].
func (g *Generator) Generate(conditions, objects domain.ValueSet) ([]domain.Order, error) {
	if err := conditions.Validate("condition types"); err != nil {
		return nil, err
	}
	if err := objects.Validate("object types"); err != nil {
		return nil, err
	}
	if len(conditions) != len(objects) {
		return nil, domain.Validationf(
			"condition types and object types must have equal length (got %d and %d)",
			len(conditions), len(objects))
	}

	n := len(conditions)
	createdAt := g.now().UTC()
	result := make([]domain.Order, 0, n*n)

	id := 1
	for j := 0; j < n; j++ { // object rotation
		for k := 0; k < n; k++ { // condition rotation
			slots := make([]domain.ConditionSlot, n)
			for p := 0; p < n; p++ {
				slots[p] = domain.ConditionSlot{
					Position:      p,
					ConditionType: conditions[(p+k)%n],
					ObjectType:    objects[(p+j)%n],
				}
			}
			result = append(result, domain.Order{
				ID:        fmt.Sprintf("ORD-%04d", id),
				Sequence:  slots,
				CreatedAt: createdAt,
			})
			id++
		}
	}

	return result, nil
}
