// Package domain defines the persistence model for fulfilled orders. The
// Order type is mapped with GORM and is shared across the repository and
// service layers; the state machine rules live next to it so every store
// backend enforces the same transitions.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// State is the fulfillment state of an order.
type State string

const (
	StatePending    State = "pending"
	StateGenerating State = "generating"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateGenerating, StateReady, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s State) Terminal() bool { return s == StateReady || s == StateFailed }

// ErrIllegalTransition is returned when a requested transition is not an
// edge of pending → generating → {ready | failed}, or when the patch breaks
// the artifact invariant.
var ErrIllegalTransition = errors.New("illegal state transition")

// Patch carries the attribute changes applied together with a transition.
type Patch struct {
	// ArtifactRef must be set when moving to ready and empty otherwise.
	ArtifactRef string
	// Attempts is the number of generator invocations made for the order.
	Attempts int
	// FailureReason is a short operator-facing description for failed orders.
	FailureReason string
}

// CheckTransition validates the edge from → to together with the patch.
func CheckTransition(from, to State, p Patch) error {
	switch {
	case from == StatePending && to == StateGenerating:
	case from == StateGenerating && (to == StateReady || to == StateFailed):
	default:
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	hasRef := strings.TrimSpace(p.ArtifactRef) != ""
	if hasRef != (to == StateReady) {
		return fmt.Errorf("%w: artifact reference must be set only for %s", ErrIllegalTransition, StateReady)
	}
	return nil
}

// orderIDRE bounds identifiers to a conservative token alphabet. Commerce
// platforms send numeric ids, but the id is opaque here.
var orderIDRE = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,64}$`)

// ValidOrderID reports whether id is present and well formed.
func ValidOrderID(id string) bool { return orderIDRE.MatchString(id) }

// Order is the single record kept per order identifier.
//
// Fields:
//   - ID: order identifier from the commerce platform (primary key).
//   - CustomerEmail: required for download authorization; stored trimmed.
//   - CustomerName: personalization only; may be a placeholder.
//   - State: fulfillment state (DB check constraint mirrors State.Valid).
//   - ArtifactRef: locator of the generated artifact; non-empty iff ready.
//   - Attempts: generator invocations made by the owning run.
//   - FailureReason: set when failed; never shown to customers.
//   - CreatedAt / TransitionedAt: creation and last transition times (UTC).
type Order struct {
	ID             string    `gorm:"type:varchar(64);primaryKey"`
	CustomerEmail  string    `gorm:"type:varchar(320);not null"`
	CustomerName   string    `gorm:"type:varchar(255);not null;default:''"`
	State          State     `gorm:"type:varchar(16);not null;index:idx_orders_state_transitioned,priority:1;check:state IN ('pending','generating','ready','failed')"`
	ArtifactRef    string    `gorm:"type:text;not null;default:''"`
	Attempts       int       `gorm:"not null;default:0"`
	FailureReason  string    `gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
	TransitionedAt time.Time `gorm:"not null;index:idx_orders_state_transitioned,priority:2"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// Apply moves o to state to with the patch applied. Callers must have run
// CheckTransition first.
func (o *Order) Apply(to State, p Patch, now time.Time) {
	o.State = to
	o.ArtifactRef = p.ArtifactRef
	if p.Attempts > 0 {
		o.Attempts = p.Attempts
	}
	o.FailureReason = p.FailureReason
	o.TransitionedAt = now
}
