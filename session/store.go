package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no session matches the lookup key.
var ErrSessionNotFound = errors.New("session not found")

// ErrRefreshSessionExpired is returned when the refresh target session has
// passed its expiry.
var ErrRefreshSessionExpired = errors.New("refresh session expired")

// ErrRefreshReused is returned when rotation targets an already-invalidated
// session, the signature of a replayed refresh token.
var ErrRefreshReused = errors.New("refresh token reuse detected")

const (
	rotateStatusNotFound    int64 = 0
	rotateStatusExpired     int64 = 1
	rotateStatusReused      int64 = 2
	rotateStatusRotated     int64 = 3
)

// luaTail provides the byte-surgery helpers shared by the mutation scripts.
// The session blob ends in a fixed 25-byte tail (see encoder.go), so the
// active flag sits at #data-24 and expiresAt starts at #data-15 (1-based).
const luaTail = `
local function read_be64(s, i)
  local v = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    v = v * 256 + b
  end
  return v
end

local function write_be64(v)
  local out = {}
  for k = 8, 1, -1 do
    out[k] = string.char(v % 256)
    v = math.floor(v / 256)
  end
  return table.concat(out)
end

local function deactivate(data)
  return string.sub(data, 1, #data - 25) .. string.char(0) .. string.sub(data, #data - 23)
end
`

const touchScript = luaTail + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local updated = string.sub(data, 1, #data - 8) .. write_be64(tonumber(ARGV[1]))
redis.call("SET", KEYS[1], updated, "KEEPTTL")
return 1
`

var touchLua = redis.NewScript(touchScript)

const invalidateScript = luaTail + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, #data - 24) == 0 then
  return 1
end
redis.call("SET", KEYS[1], deactivate(data), "KEEPTTL")
return 2
`

var invalidateLua = redis.NewScript(invalidateScript)

const invalidateAllScript = luaTail + `
local ids = redis.call("SMEMBERS", KEYS[1])
local invalidated = 0
for _, id in ipairs(ids) do
  if id ~= ARGV[2] then
    local key = ARGV[1] .. id
    local data = redis.call("GET", key)
    if not data then
      redis.call("SREM", KEYS[1], id)
    elseif string.byte(data, #data - 24) == 1 then
      redis.call("SET", key, deactivate(data), "KEEPTTL")
      invalidated = invalidated + 1
    end
  end
end
return invalidated
`

var invalidateAllLua = redis.NewScript(invalidateAllScript)

const rotateScript = luaTail + `
local old_id = redis.call("GET", KEYS[1])
if not old_id then
  return {0}
end
local old_key = ARGV[1] .. old_id
local data = redis.call("GET", old_key)
if not data then
  redis.call("DEL", KEYS[1])
  return {0}
end
if string.byte(data, #data - 24) == 0 then
  return {2}
end
local expires_at = read_be64(data, #data - 15)
if not expires_at or expires_at <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return {1}
end
redis.call("SET", old_key, deactivate(data), "KEEPTTL")
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[3], ARGV[4], "PX", ARGV[5])
redis.call("SET", KEYS[4], ARGV[3], "PX", ARGV[5])
redis.call("SET", KEYS[5], ARGV[3], "PX", ARGV[5])
redis.call("SADD", KEYS[2], ARGV[3])
return {3, old_id}
`

var rotateLua = redis.NewScript(rotateScript)

// Store is a Redis-backed session store handling persistence, token-hash
// lookup, read-time expiry, and atomic refresh rotation. Every mutation is
// a single MULTI/EXEC pipeline or Lua script, so a cancelled caller can
// never leave a session half-written.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store using prefix as the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ak"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) sessionKeyPrefix() string {
	return s.prefix + ":s:"
}

func (s *Store) sessionKey(sessionID string) string {
	return s.sessionKeyPrefix() + sessionID
}

func (s *Store) accessKey(hash [32]byte) string {
	return s.prefix + ":a:" + hex.EncodeToString(hash[:])
}

func (s *Store) refreshKey(hash [32]byte) string {
	return s.prefix + ":r:" + hex.EncodeToString(hash[:])
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists sess and its token-hash indexes atomically with the given
// TTL. The user's session set slides forward with every save.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.ID), data, ttl)
		pipe.Set(ctx, s.accessKey(sess.AccessHash), sess.ID, ttl)
		pipe.Set(ctx, s.refreshKey(sess.RefreshHash), sess.ID, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetByID retrieves a session by its identifier.
func (s *Store) GetByID(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return Decode(data)
}

// GetByAccessHash resolves a session through the access-token hash index.
func (s *Store) GetByAccessHash(ctx context.Context, hash [32]byte) (*Session, error) {
	return s.getByIndex(ctx, s.accessKey(hash))
}

// GetByRefreshHash resolves a session through the refresh-token hash index.
func (s *Store) GetByRefreshHash(ctx context.Context, hash [32]byte) (*Session, error) {
	return s.getByIndex(ctx, s.refreshKey(hash))
}

func (s *Store) getByIndex(ctx context.Context, indexKey string) (*Session, error) {
	sessionID, err := s.redis.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.GetByID(ctx, sessionID)
}

// Touch updates the session's lastUsedAt stamp in place, preserving the TTL.
// Touching a missing session is a no-op.
func (s *Store) Touch(ctx context.Context, sessionID string, now time.Time) error {
	err := touchLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		strconv.FormatInt(now.Unix(), 10),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Invalidate flips the session into its terminal inactive state. The
// operation is idempotent: invalidating a missing or already-invalidated
// session reports changed=false with no error.
func (s *Store) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	status, err := invalidateLua.Run(ctx, s.redis, []string{s.sessionKey(sessionID)}).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return status == 2, nil
}

// InvalidateAllForUser invalidates every session of the user except
// excludeSessionID (pass "" to exclude none). The whole sweep runs as one
// Lua script, so a session saved concurrently is either fully created after
// the sweep or fully covered by it — never half-killed.
func (s *Store) InvalidateAllForUser(ctx context.Context, userID, excludeSessionID string) (int, error) {
	count, err := invalidateAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.sessionKeyPrefix(), excludeSessionID,
	).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Rotate atomically retires the session matching oldRefreshHash and installs
// next in its place: single-use refresh rotation. It returns the retired
// session's ID, or ErrSessionNotFound / ErrRefreshSessionExpired /
// ErrRefreshReused depending on what the script found.
func (s *Store) Rotate(ctx context.Context, oldRefreshHash [32]byte, next *Session, ttl time.Duration) (string, error) {
	data, err := Encode(next)
	if err != nil {
		return "", err
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{
			s.refreshKey(oldRefreshHash),
			s.userKey(next.UserID),
			s.sessionKey(next.ID),
			s.accessKey(next.AccessHash),
			s.refreshKey(next.RefreshHash),
		},
		s.sessionKeyPrefix(),
		strconv.FormatInt(next.CreatedAt.Unix(), 10),
		next.ID,
		string(data),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Slice()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return "", ErrRedisUnavailable
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusRotated:
		oldID, _ := res[1].(string)
		return oldID, nil
	case rotateStatusExpired:
		return "", ErrRefreshSessionExpired
	case rotateStatusReused:
		return "", ErrRefreshReused
	default:
		return "", ErrSessionNotFound
	}
}

// ListByUser returns every stored session of the user, including inactive
// and expired ones whose rows have not yet fallen out of Redis. Dangling
// set members whose blobs already expired are pruned as a side effect.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	blobs, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	var dangling []interface{}
	for i, blob := range blobs {
		raw, ok := blob.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		sess, err := Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if len(dangling) > 0 {
		// Storage hygiene only; correctness never depends on this prune.
		_ = s.redis.SRem(ctx, s.userKey(userID), dangling...).Err()
	}

	return sessions, nil
}

// ListActiveByUser filters ListByUser down to sessions valid at now.
func (s *Store) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, sess := range all {
		if sess.IsValid(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

// CountActive returns the number of sessions valid at now.
func (s *Store) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	active, err := s.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

// PurgeExpired deletes the user's expired session rows and their set
// entries. Expiry remains a read-time decision; this only reclaims storage.
func (s *Store) PurgeExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, sess := range all {
		if !sess.IsExpired(now) {
			continue
		}
		_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.sessionKey(sess.ID))
			pipe.SRem(ctx, s.userKey(userID), sess.ID)
			return nil
		})
		if err != nil {
			return purged, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		purged++
	}
	return purged, nil
}

// Ping measures round-trip latency to the backing Redis.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
