package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind distinguishes the two assignable entities.
type ItemKind string

const (
	ItemKindBatch    ItemKind = "BATCH"
	ItemKindDocument ItemKind = "DOCUMENT"
)

func (k ItemKind) String() string { return string(k) }

func (k ItemKind) IsValid() bool {
	return k == ItemKindBatch || k == ItemKindDocument
}

func ParseItemKindFromString(s string) (ItemKind, error) {
	k := ItemKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid item kind %q", ErrValidation, s)
	}
	return k, nil
}

// ItemRef points at a batch or a document.
type ItemRef struct {
	Kind ItemKind
	ID   string
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%s", strings.ToLower(r.Kind.String()), r.ID)
}

func (r ItemRef) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: invalid item kind %q", ErrValidation, r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: item id is required", ErrValidation)
	}
	return nil
}

// AssignmentRecord is an append-only audit entry for an assignment or a
// reassignment. It is never mutated.
type AssignmentRecord struct {
	ID            string
	Item          ItemRef
	FromHandlerID *string
	ToHandlerID   string
	Reason        *string
	Reassignment  bool
	ActorID       string
	CreatedAt     time.Time
}

// Assignment is a conditional ownership change for an item. The write only
// succeeds when the current handler still equals ExpectedHandlerID (nil meaning
// no handler) and, for documents, the state is in the re-assignable pool.
type Assignment struct {
	Item              ItemRef
	ExpectedHandlerID *string
	HandlerID         string
	Record            AssignmentRecord
}

// Workload is the derived active-item view for a handler.
type Workload struct {
	HandlerID  string
	Active     int
	Capacity   int
	Overloaded bool
}

// UtilizationRate is active / capacity as a percentage.
func (w Workload) UtilizationRate() float64 {
	if w.Capacity <= 0 {
		return 0
	}
	return float64(w.Active) / float64(w.Capacity) * 100
}

// NewWorkload evaluates the overload rule for a handler.
func NewWorkload(handlerID string, active int, capacity int) Workload {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Workload{
		HandlerID:  handlerID,
		Active:     active,
		Capacity:   capacity,
		Overloaded: active > capacity,
	}
}
