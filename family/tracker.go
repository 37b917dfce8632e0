// Package family tracks refresh-token rotation lineages in Redis. Each
// family records every secret hash it ever issued; presenting a hash
// that was already rotated out is treated as theft and revokes the
// entire lineage.
package family

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a family does not exist or has
	// expired out of the store.
	ErrNotFound = errors.New("token family not found")
	// ErrRevoked is returned when the family was explicitly revoked
	// (logout, password reset, admin action).
	ErrRevoked = errors.New("token family revoked")
	// ErrReuseDetected is returned when a rotated-out hash is presented
	// again. By the time the caller sees this the whole family is
	// already revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrUnavailable wraps coordination-store failures. Callers on
	// revocation-check paths must fail closed on it.
	ErrUnavailable = errors.New("family store unavailable")
)

const (
	rotateStatusRevoked  int64 = 0
	rotateStatusNotFound int64 = 1
	rotateStatusReuse    int64 = 2
	rotateStatusRotated  int64 = 3
)

// The whole check-and-rotate runs as one Lua script so two concurrent
// refreshes with the same secret can never both succeed. Keys are
// hash-tagged by family ID to stay single-slot under Redis Cluster.
const rotateScript = `
local cur_key = KEYS[1]
local members_key = KEYS[2]
local revoked_key = KEYS[3]
local meta_key = KEYS[4]
local provided = ARGV[1]
local next_hash = ARGV[2]
local ttl_ms = tonumber(ARGV[3])

if redis.call("EXISTS", revoked_key) == 1 then
  return {0}
end

local cur = redis.call("GET", cur_key)
if not cur then
  return {1}
end

local meta = redis.call("GET", meta_key)

if cur == provided then
  redis.call("SET", cur_key, next_hash, "PX", ttl_ms)
  redis.call("SADD", members_key, next_hash)
  redis.call("PEXPIRE", members_key, ttl_ms)
  redis.call("PEXPIRE", meta_key, ttl_ms)
  return {3, meta}
end

if redis.call("SISMEMBER", members_key, provided) == 1 then
  redis.call("SET", revoked_key, "1", "PX", ttl_ms)
  redis.call("DEL", cur_key)
  return {2, meta}
end

return {1}
`

var rotateLua = redis.NewScript(rotateScript)

// Binding identifies the session a family belongs to. A family and its
// session are one lifecycle: revoking either must revoke the other.
type Binding struct {
	UserID    string
	SessionID string
}

// Tracker is the Redis-backed rotation ledger.
type Tracker struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewTracker creates a Tracker. ttl must cover at least the refresh
// credential lifetime.
func NewTracker(client redis.UniversalClient, prefix string, ttl time.Duration) *Tracker {
	if prefix == "" {
		prefix = "tf"
	}
	return &Tracker{redis: client, prefix: prefix, ttl: ttl}
}

func (t *Tracker) currentKey(familyID string) string {
	return t.prefix + ":{" + familyID + "}:cur"
}

func (t *Tracker) membersKey(familyID string) string {
	return t.prefix + ":{" + familyID + "}:members"
}

func (t *Tracker) revokedKey(familyID string) string {
	return t.prefix + ":{" + familyID + "}:rev"
}

func (t *Tracker) metaKey(familyID string) string {
	return t.prefix + ":{" + familyID + "}:meta"
}

// Begin opens a new family with its founding secret hash.
func (t *Tracker) Begin(ctx context.Context, familyID string, binding Binding, firstHash [32]byte) error {
	meta, err := encodeBinding(binding)
	if err != nil {
		return err
	}

	_, err = t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, t.currentKey(familyID), firstHash[:], t.ttl)
		pipe.SAdd(ctx, t.membersKey(familyID), firstHash[:])
		pipe.Expire(ctx, t.membersKey(familyID), t.ttl)
		pipe.Set(ctx, t.metaKey(familyID), meta, t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Rotate atomically consumes providedHash and installs nextHash as the
// family's current secret. On reuse the family is revoked in the same
// atomic step and ErrReuseDetected is returned along with the binding
// (when recoverable) so the caller can revoke the companion session.
func (t *Tracker) Rotate(ctx context.Context, familyID string, providedHash, nextHash [32]byte) (*Binding, error) {
	keys := []string{
		t.currentKey(familyID),
		t.membersKey(familyID),
		t.revokedKey(familyID),
		t.metaKey(familyID),
	}

	result, err := rotateLua.Run(ctx, t.redis, keys,
		providedHash[:], nextHash[:], t.ttl.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
	}
	status, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
	}

	switch status {
	case rotateStatusRevoked:
		return nil, ErrRevoked
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusReuse:
		binding, _ := bindingFromScript(parts)
		return binding, ErrReuseDetected
	case rotateStatusRotated:
		binding, decErr := bindingFromScript(parts)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, decErr)
		}
		return binding, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrUnavailable)
	}
}

// Revoke marks the entire family revoked. Always family-wide, never a
// single generation.
func (t *Tracker) Revoke(ctx context.Context, familyID string) error {
	_, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, t.revokedKey(familyID), "1", t.ttl)
		pipe.Del(ctx, t.currentKey(familyID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the family carries a revocation marker.
func (t *Tracker) IsRevoked(ctx context.Context, familyID string) (bool, error) {
	n, err := t.redis.Exists(ctx, t.revokedKey(familyID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func bindingFromScript(parts []interface{}) (*Binding, error) {
	if len(parts) < 2 || parts[1] == nil {
		return nil, errors.New("missing family metadata")
	}

	var blob []byte
	switch v := parts[1].(type) {
	case string:
		blob = []byte(v)
	case []byte:
		blob = v
	default:
		return nil, errors.New("invalid family metadata payload")
	}

	return decodeBinding(blob)
}
