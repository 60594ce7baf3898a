package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData        = "d"
	fieldUserID      = "uid"
	fieldToken       = "tok"
	fieldLastActive  = "la"
	fieldExpiresAt   = "exp"
	fieldMFAVerified = "mfa"

	sweepScanCount = 500
)

const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end

local la = tonumber(ARGV[1])
local cur_la = tonumber(redis.call("HGET", KEYS[1], "la") or "0")
if la > cur_la then
  redis.call("HSET", KEYS[1], "la", ARGV[1])
end

local nxt = tonumber(ARGV[2])
if nxt > 0 then
  local cur = tonumber(redis.call("HGET", KEYS[1], "exp") or "0")
  if nxt > cur then
    redis.call("HSET", KEYS[1], "exp", ARGV[2])
    redis.call("PEXPIREAT", KEYS[1], ARGV[2])
    local tok = redis.call("HGET", KEYS[1], "tok")
    if tok and tok ~= "" then
      redis.call("PEXPIREAT", ARGV[3] .. tok, ARGV[2])
    end
  end
end
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const markMFAScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local cur = tonumber(redis.call("HGET", KEYS[1], "mfa") or "0")
if cur == 0 then
  redis.call("HSET", KEYS[1], "mfa", ARGV[1])
end
return 1
`

var markMFALua = redis.NewScript(markMFAScript)

const deleteSessionScript = `
local fields = redis.call("HMGET", KEYS[1], "uid", "tok")
local existed = redis.call("DEL", KEYS[1])
local uid = fields[1]
local tok = fields[2]
if uid then
  redis.call("SREM", ARGV[2] .. uid, ARGV[1])
end
if tok and tok ~= "" then
  redis.call("DEL", ARGV[3] .. tok)
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisStore is a Redis-backed [Store].
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store whose keys live under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "als"
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *RedisStore) tokenPrefix() string {
	return s.prefix + ":t:"
}

func (s *RedisStore) tokenKey(token string) string {
	return s.tokenPrefix() + token
}

// Create writes the session hash, user index and token index in one
// MULTI/EXEC block.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id required")
	}
	data, err := encodeIdentity(identityOf(sess))
	if err != nil {
		return err
	}

	key := s.key(sess.ID)
	var mfa int64
	if sess.MFAVerified {
		mfa = sess.MFAVerifiedAt.UnixMilli()
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldData, data,
			fieldUserID, sess.UserID,
			fieldToken, sess.Token,
			fieldLastActive, sess.LastActivityAt.UnixMilli(),
			fieldExpiresAt, sess.ExpiresAt.UnixMilli(),
			fieldMFAVerified, mfa,
		)
		pipe.PExpireAt(ctx, key, sess.ExpiresAt)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		if sess.Token != "" {
			pipe.Set(ctx, s.tokenKey(sess.Token), sess.ID, 0)
			pipe.PExpireAt(ctx, s.tokenKey(sess.Token), sess.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get reads one session hash.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(id, fields)
}

// GetByToken resolves the token index, then reads the session.
func (s *RedisStore) GetByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	id, err := s.redis.Get(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Token != token {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Touch advances activity and, when expiresAt is later than the stored value,
// the expiry of the session and token keys.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Touch(ctx context.Context, id string, lastActivityAt, expiresAt time.Time) error {
	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.UnixMilli()
	}
	res, err := touchSessionLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		lastActivityAt.UnixMilli(),
		exp,
		s.tokenPrefix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkMFAVerified sets the verification timestamp if unset.
func (s *RedisStore) MarkMFAVerified(ctx context.Context, id string, at time.Time) error {
	res, err := markMFALua.Run(ctx, s.redis, []string{s.key(id)}, at.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session and its index entries. Deleting an unknown ID
// is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		id,
		s.userPrefix(),
		s.tokenPrefix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteByUser removes every indexed session for userID.
//
// The user index is read before the deletes are pipelined. Only the ids read
// are removed from the index, so a session created between the two phases
// stays indexed and a later call removes it.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	removed, err := s.deleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	// Drops index entries whose hash already expired.
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.redis.SRem(ctx, s.userKey(userID), members...).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return removed, nil
}

// ListByUser fetches every indexed session for userID. Index entries whose
// hash has already expired are skipped.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			continue
		}
		sess, err := decodeFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// DeleteExpired scans session keys and removes those whose stored expiry has
// passed, then prunes user index entries that point at missing hashes.
// This is an O(n) maintenance operation and must not run on request paths.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	nowMs := now.UnixMilli()
	sessionPrefix := s.prefix + ":s:"

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, sessionPrefix+"*", sweepScanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		if len(keys) > 0 {
			pipe := s.redis.Pipeline()
			cmds := make([]*redis.StringCmd, len(keys))
			for i, key := range keys {
				cmds[i] = pipe.HGet(ctx, key, fieldExpiresAt)
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}

			expired := make([]string, 0, len(keys))
			for i, cmd := range cmds {
				exp, err := cmd.Int64()
				if err != nil {
					continue
				}
				if exp <= nowMs {
					expired = append(expired, keys[i][len(sessionPrefix):])
				}
			}
			n, err := s.deleteMany(ctx, expired)
			removed += n
			if err != nil {
				return removed, err
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := s.pruneUserIndexes(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *RedisStore) pruneUserIndexes(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.userPrefix()+"*", sweepScanCount).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		for _, userKey := range keys {
			ids, err := s.redis.SMembers(ctx, userKey).Result()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			for _, id := range ids {
				n, err := s.redis.Exists(ctx, s.key(id)).Result()
				if err != nil {
					return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
				}
				if n == 0 {
					if err := s.redis.SRem(ctx, userKey, id).Err(); err != nil {
						return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
					}
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) deleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.Cmd, len(ids))
	for i, id := range ids {
		cmds[i] = deleteSessionLua.Eval(ctx, pipe,
			[]string{s.key(id)},
			id,
			s.userPrefix(),
			s.tokenPrefix(),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	removed := 0
	for _, cmd := range cmds {
		n, err := cmd.Int64()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		removed += int(n)
	}
	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeFields(id string, fields map[string]string) (*Session, error) {
	ident, err := decodeIdentity([]byte(fields[fieldData]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	la, err := strconv.ParseInt(fields[fieldLastActive], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: last activity: %v", ErrCorrupt, err)
	}
	exp, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry: %v", ErrCorrupt, err)
	}

	sess := &Session{
		ID:             id,
		UserID:         ident.UserID,
		TenantID:       ident.TenantID,
		Role:           ident.Role,
		Email:          ident.Email,
		Token:          ident.Token,
		IPAddress:      ident.IPAddress,
		UserAgent:      ident.UserAgent,
		CreatedAt:      ident.CreatedAt,
		LastActivityAt: time.UnixMilli(la).UTC(),
		ExpiresAt:      time.UnixMilli(exp).UTC(),
	}
	if raw := fields[fieldMFAVerified]; raw != "" && raw != "0" {
		mfa, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: mfa: %v", ErrCorrupt, err)
		}
		sess.MFAVerified = true
		sess.MFAVerifiedAt = time.UnixMilli(mfa).UTC()
	}
	return sess, nil
}
