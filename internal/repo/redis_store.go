package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-fulfillment-backend/internal/domain"
)

// RedisOrderStore keeps each order in a Redis hash. Create-if-absent and the
// state compare-and-set run as Lua scripts, so they are atomic on the server
// across any number of application processes. Orders in the generating state
// are also indexed in a sorted set scored by transition time (unix millis)
// for ListStale.
type RedisOrderStore struct {
	rdb    redis.UniversalClient
	prefix string
	Now    func() time.Time
}

// NewRedisOrderStore returns a store using keys under prefix
// (default "fulfillment:").
func NewRedisOrderStore(rdb redis.UniversalClient, prefix string) *RedisOrderStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "fulfillment:"
	}
	return &RedisOrderStore{
		rdb:    rdb,
		prefix: prefix,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// OrderKey returns the hash key for an order.
func (s *RedisOrderStore) OrderKey(id string) string { return s.prefix + "order:" + id }

// StateIndexKey returns the sorted-set key indexing orders in state.
func (s *RedisOrderStore) StateIndexKey(state domain.State) string {
	return s.prefix + "state:" + string(state)
}

const (
	fieldID             = "id"
	fieldEmail          = "customer_email"
	fieldName           = "customer_name"
	fieldState          = "state"
	fieldArtifactRef    = "artifact_ref"
	fieldAttempts       = "attempts"
	fieldFailureReason  = "failure_reason"
	fieldCreatedAt      = "created_at"
	fieldTransitionedAt = "transitioned_at"
)

// KEYS[1]=order hash
// ARGV: id, email, name, state, nowMillis
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1], "customer_email", ARGV[2], "customer_name", ARGV[3],
  "state", ARGV[4], "artifact_ref", "", "attempts", "0", "failure_reason", "",
  "created_at", ARGV[5], "transitioned_at", ARGV[5])
return 1
`)

// KEYS[1]=order hash, KEYS[2]=from index, KEYS[3]=to index
// ARGV: id, from, to, artifactRef, attempts, failureReason, nowMillis
// Returns 1 on success, 0 on state mismatch, -1 when the order is missing.
var transitionScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "state")
if not cur then
  return -1
end
if cur ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], "state", ARGV[3], "artifact_ref", ARGV[4],
  "failure_reason", ARGV[6], "transitioned_at", ARGV[7])
if tonumber(ARGV[5]) > 0 then
  redis.call("HSET", KEYS[1], "attempts", ARGV[5])
end
redis.call("ZREM", KEYS[2], ARGV[1])
if ARGV[3] == "generating" then
  redis.call("ZADD", KEYS[3], ARGV[7], ARGV[1])
end
return 1
`)

// CreateIfAbsent stores seed as pending unless the key exists.
func (s *RedisOrderStore) CreateIfAbsent(ctx context.Context, seed domain.Order) (*domain.Order, bool, error) {
	now := s.Now()
	n, err := createScript.Run(ctx, s.rdb, []string{s.OrderKey(seed.ID)},
		seed.ID, seed.CustomerEmail, seed.CustomerName, string(domain.StatePending), now.UnixMilli(),
	).Int64()
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return &domain.Order{
			ID:             seed.ID,
			CustomerEmail:  seed.CustomerEmail,
			CustomerName:   seed.CustomerName,
			State:          domain.StatePending,
			CreatedAt:      time.UnixMilli(now.UnixMilli()).UTC(),
			TransitionedAt: time.UnixMilli(now.UnixMilli()).UTC(),
		}, true, nil
	}
	o, found, err := s.Get(ctx, seed.ID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, ErrConflict
	}
	return o, false, nil
}

// Transition performs the compare-and-set server side.
func (s *RedisOrderStore) Transition(ctx context.Context, id string, from, to domain.State, p domain.Patch) (*domain.Order, error) {
	if err := domain.CheckTransition(from, to, p); err != nil {
		return nil, err
	}
	now := s.Now()
	keys := []string{s.OrderKey(id), s.StateIndexKey(from), s.StateIndexKey(to)}
	n, err := transitionScript.Run(ctx, s.rdb, keys,
		id, string(from), string(to), strings.TrimSpace(p.ArtifactRef), p.Attempts, p.FailureReason, now.UnixMilli(),
	).Int64()
	if err != nil {
		return nil, err
	}
	switch n {
	case -1:
		return nil, ErrNotFound
	case 0:
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

// Get loads the order hash. A missing key is (nil, false, nil).
func (s *RedisOrderStore) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	m, err := s.rdb.HGetAll(ctx, s.OrderKey(id)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	o, err := orderFromHash(m)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// ListStale reads the state index for members scored before the cutoff.
func (s *RedisOrderStore) ListStale(ctx context.Context, state domain.State, before time.Time) ([]domain.Order, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.StateIndexKey(state), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, found, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if found && o.State == state {
			out = append(out, *o)
		}
	}
	return out, nil
}

// orderFromHash decodes the hash written by the scripts above.
func orderFromHash(m map[string]string) (*domain.Order, error) {
	state := domain.State(m[fieldState])
	if !state.Valid() {
		return nil, errors.New("redis order: invalid state " + strconv.Quote(m[fieldState]))
	}
	attempts, _ := strconv.Atoi(m[fieldAttempts])
	return &domain.Order{
		ID:             m[fieldID],
		CustomerEmail:  m[fieldEmail],
		CustomerName:   m[fieldName],
		State:          state,
		ArtifactRef:    m[fieldArtifactRef],
		Attempts:       attempts,
		FailureReason:  m[fieldFailureReason],
		CreatedAt:      millis(m[fieldCreatedAt]),
		TransitionedAt: millis(m[fieldTransitionedAt]),
	}, nil
}

func millis(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}
