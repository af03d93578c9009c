// Package repo implements the order persistence layer. This file provides
// the GORM-backed order store and the error values shared by every backend.
//
// All methods are context-aware. Atomicity of Transition comes from a single
// conditional UPDATE (`WHERE id = ? AND state = ?`): the database serializes
// concurrent writers to the same row, and RowsAffected tells the caller
// whether it won the compare-and-set.
//
// Error semantics (all backends):
//   - ErrNotFound: Transition on an order that does not exist.
//   - ErrConflict: the order exists but is no longer in the expected state.
//   - domain.ErrIllegalTransition: the requested edge is not allowed.
//   - Get never returns ErrNotFound; absence is reported through its bool.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-fulfillment-backend/internal/domain"
)

var (
	// ErrNotFound is returned when a transition targets an unknown order.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when the order's current state differs from the
	// expected one, i.e. another caller won the transition.
	ErrConflict = errors.New("order state conflict")
)

// GormOrderStore persists orders in a relational database through GORM.
type GormOrderStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewGormOrderStore returns a store bound to db.
func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// CreateIfAbsent inserts seed in the pending state unless a row with the same
// ID exists. It returns the stored row and whether this call created it.
func (s *GormOrderStore) CreateIfAbsent(ctx context.Context, seed domain.Order) (*domain.Order, bool, error) {
	now := s.Now()
	rec := domain.Order{
		ID:             seed.ID,
		CustomerEmail:  seed.CustomerEmail,
		CustomerName:   seed.CustomerName,
		State:          domain.StatePending,
		CreatedAt:      now,
		TransitionedAt: now,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &rec, true, nil
	}

	existing, found, err := s.Get(ctx, seed.ID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		// Inserted by nobody yet not readable: treat like a lost race.
		return nil, false, ErrConflict
	}
	return existing, false, nil
}

// Transition moves the order from → to in one conditional UPDATE.
func (s *GormOrderStore) Transition(ctx context.Context, id string, from, to domain.State, p domain.Patch) (*domain.Order, error) {
	if err := domain.CheckTransition(from, to, p); err != nil {
		return nil, err
	}
	now := s.Now()
	updates := map[string]any{
		"state":           to,
		"artifact_ref":    strings.TrimSpace(p.ArtifactRef),
		"failure_reason":  p.FailureReason,
		"transitioned_at": now,
	}
	if p.Attempts > 0 {
		updates["attempts"] = p.Attempts
	}

	res := s.DB.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		_, found, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}

	o, found, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return o, nil
}

// Get returns the order with the given ID. A missing order is (nil, false, nil).
func (s *GormOrderStore) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	var o domain.Order
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &o, true, nil
}

// ListStale returns orders in state whose last transition happened before
// the given time, oldest first. Times are stored in UTC, so before is
// converted to keep the comparison consistent on text-backed columns.
func (s *GormOrderStore) ListStale(ctx context.Context, state domain.State, before time.Time) ([]domain.Order, error) {
	var out []domain.Order
	err := s.DB.WithContext(ctx).
		Where("state = ? AND transitioned_at < ?", state, before.UTC()).
		Order("transitioned_at ASC").
		Find(&out).Error
	return out, err
}
