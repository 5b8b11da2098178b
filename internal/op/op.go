// Package op defines the unit of replication: an immutable, uniquely
// identified mutation addressed to one entity and stamped with a hybrid
// logical clock value. Operations are serialized one-per-line (NDJSON)
// into batch files for exchange through the remote store.
package op

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/coveyapp/covey/internal/hlc"
)

// EntityType identifies which materialized table an operation targets.
type EntityType string

// Entity types known to this deployment. The wire value is the string
// itself, so renaming one is a format break.
const (
	EntityQuail EntityType = "quail"
	EntityEvent EntityType = "event"
	EntityEgg   EntityType = "egg"
	EntityPhoto EntityType = "photo"
)

// ParseEntityType validates a wire-level entity type string. Unknown
// types are not an error at this layer — the apply engine logs and
// skips them so newer producers don't break older consumers.
func ParseEntityType(s string) (EntityType, bool) {
	switch t := EntityType(s); t {
	case EntityQuail, EntityEvent, EntityEgg, EntityPhoto:
		return t, true
	default:
		return "", false
	}
}

// Kind discriminates the mutation variants.
type Kind string

const (
	// KindSet is a last-writer-wins register update of a single field.
	KindSet Kind = "set"
	// KindIncrement is an additive counter update. It commutes with
	// itself, so it is applied unconditionally and only accumulates.
	KindIncrement Kind = "incr"
	// KindTombstone marks the entity logically deleted.
	KindTombstone Kind = "tombstone"
)

// Mutation is the tagged payload of an operation. Field is unset for
// tombstones; Delta is only meaningful for increments; Value only for
// set-field.
type Mutation struct {
	Kind  Kind
	Field string
	Value any
	Delta int64
}

// mutationWire is the JSON shape of a Mutation: a tagged object so the
// set of variants can grow without breaking older readers.
type mutationWire struct {
	Type  string          `json:"type"`
	Field string          `json:"field,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Delta int64           `json:"delta,omitempty"`
}

// MarshalJSON encodes the mutation as a tagged object.
func (m Mutation) MarshalJSON() ([]byte, error) {
	w := mutationWire{Type: string(m.Kind), Field: m.Field, Delta: m.Delta}

	if m.Kind == KindSet {
		raw, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("op: encoding field value: %w", err)
		}

		w.Value = raw
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes a tagged mutation object. An unknown tag is an
// error here (the line is malformed for this reader); callers treat it
// as a single skipped record, never a fatal batch failure.
func (m *Mutation) UnmarshalJSON(data []byte) error {
	var w mutationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("op: decoding mutation: %w", err)
	}

	switch Kind(w.Type) {
	case KindSet:
		var v any
		if len(w.Value) > 0 {
			if err := json.Unmarshal(w.Value, &v); err != nil {
				return fmt.Errorf("op: decoding set value: %w", err)
			}
		}

		*m = Mutation{Kind: KindSet, Field: w.Field, Value: v}
	case KindIncrement:
		*m = Mutation{Kind: KindIncrement, Field: w.Field, Delta: w.Delta}
	case KindTombstone:
		*m = Mutation{Kind: KindTombstone}
	default:
		return fmt.Errorf("op: unknown mutation type %q", w.Type)
	}

	return nil
}

// Operation is one immutable change record. IDs are UUIDv7: time-prefixed
// and therefore lexicographically sortable by creation time, which also
// makes batch file names monotonic per device.
type Operation struct {
	ID       string     `json:"op_id"`
	Entity   EntityType `json:"entity_type"`
	EntityID string     `json:"entity_id"`
	Clock    hlc.Stamp  `json:"clock"`
	Mut      Mutation   `json:"mutation"`
}

// NewID returns a fresh sortable operation identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSet constructs a set-field operation.
func NewSet(entity EntityType, entityID string, clock hlc.Stamp, field string, value any) Operation {
	return Operation{
		ID:       NewID(),
		Entity:   entity,
		EntityID: entityID,
		Clock:    clock,
		Mut:      Mutation{Kind: KindSet, Field: field, Value: value},
	}
}

// NewIncrement constructs an additive counter operation.
func NewIncrement(entity EntityType, entityID string, clock hlc.Stamp, field string, delta int64) Operation {
	return Operation{
		ID:       NewID(),
		Entity:   entity,
		EntityID: entityID,
		Clock:    clock,
		Mut:      Mutation{Kind: KindIncrement, Field: field, Delta: delta},
	}
}

// NewTombstone constructs a soft-delete operation.
func NewTombstone(entity EntityType, entityID string, clock hlc.Stamp) Operation {
	return Operation{
		ID:       NewID(),
		Entity:   entity,
		EntityID: entityID,
		Clock:    clock,
		Mut:      Mutation{Kind: KindTombstone},
	}
}

// Validate checks structural shape only. Domain checks (field legality,
// entity type) belong to the apply engine so that replaying old
// operations against newer schemas degrades to a logged skip. Set
// values must be JSON scalars; an object or array value makes the line
// malformed, so readers drop it instead of carrying it into a batch
// transaction no database column can accept.
func (o *Operation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("op: missing op_id")
	}

	if o.EntityID == "" {
		return fmt.Errorf("op: %s: missing entity_id", o.ID)
	}

	if o.Clock.Device == "" {
		return fmt.Errorf("op: %s: missing clock device", o.ID)
	}

	switch o.Mut.Kind {
	case KindSet:
		if o.Mut.Field == "" {
			return fmt.Errorf("op: %s: missing field", o.ID)
		}

		switch o.Mut.Value.(type) {
		case nil, string, bool, float64, int, int64:
		default:
			return fmt.Errorf("op: %s: non-scalar set value (%T)", o.ID, o.Mut.Value)
		}
	case KindIncrement:
		if o.Mut.Field == "" {
			return fmt.Errorf("op: %s: missing field", o.ID)
		}
	case KindTombstone:
	default:
		return fmt.Errorf("op: %s: unknown mutation kind %q", o.ID, o.Mut.Kind)
	}

	return nil
}

// SortByClock orders operations by total clock order, with the operation
// ID as a final tie-break so any permutation of the same set sorts to an
// identical sequence on every device.
func SortByClock(ops []Operation) {
	sort.Slice(ops, func(i, j int) bool {
		if c := hlc.Compare(ops[i].Clock, ops[j].Clock); c != 0 {
			return c < 0
		}

		return ops[i].ID < ops[j].ID
	})
}
