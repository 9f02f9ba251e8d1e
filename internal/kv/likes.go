package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrFlagChanged is returned by Unlike when the like flag no longer holds
// the value the caller read: another request toggled it in between.
var ErrFlagChanged = errors.New("kv: like flag changed concurrently")

// LikeTarget names everything one like touches.
type LikeTarget struct {
	VoterID       string
	ArtworkID     string
	Creator       string   // normalised creator handle, empty when anonymous
	ArtBoards     []string // board keys scored by artwork id
	CreatorBoards []string // board keys scored by creator handle
}

func (t LikeTarget) keys() []string {
	keys := make([]string, 0, 2+len(t.ArtBoards)+len(t.CreatorBoards))
	keys = append(keys, FlagKey(t.VoterID, t.ArtworkID), CountKey(t.ArtworkID))
	keys = append(keys, t.ArtBoards...)
	if t.Creator != "" {
		keys = append(keys, t.CreatorBoards...)
	}
	return keys
}

// Like records a like at the given time. It is a no-op (changed=false)
// when the voter already likes the artwork. count is the counter after the
// call.
func (s *Store) Like(ctx context.Context, t LikeTarget, at time.Time) (changed bool, count int64, err error) {
	res, err := likeScript.Run(ctx, s.client, t.keys(),
		at.Unix(), len(t.ArtBoards), t.ArtworkID, t.Creator,
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("kv: like %s: %w", t.ArtworkID, err)
	}
	status, count, err := pair(res)
	if err != nil {
		return false, 0, err
	}
	return status == 1, count, nil
}

// Unlike removes a like, provided the flag still holds expected (the raw
// value read by LikedAt). The counter is floored at zero.
func (s *Store) Unlike(ctx context.Context, t LikeTarget, expected string) (changed bool, count int64, err error) {
	res, err := unlikeScript.Run(ctx, s.client, t.keys(),
		expected, len(t.ArtBoards), t.ArtworkID, t.Creator,
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("kv: unlike %s: %w", t.ArtworkID, err)
	}
	status, count, err := pair(res)
	if err != nil {
		return false, 0, err
	}
	if status == -1 {
		return false, 0, ErrFlagChanged
	}
	return status == 1, count, nil
}

func pair(res interface{}) (int64, int64, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("kv: unexpected script reply %v", res)
	}
	return parseInt(vals[0]), parseInt(vals[1]), nil
}

// KEYS: flag, count, art boards..., creator boards...
// ARGV: liked-at unix, number of art boards, artwork id, creator handle
var likeScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	return {0, tonumber(redis.call('GET', KEYS[2]) or '0')}
end
local c = redis.call('INCR', KEYS[2])
local n = tonumber(ARGV[2])
for i = 3, #KEYS do
	local m = ARGV[4]
	if i < 3 + n then m = ARGV[3] end
	redis.call('ZINCRBY', KEYS[i], 1, m)
end
return {1, c}
`)

// KEYS: as likeScript
// ARGV: expected flag value, number of art boards, artwork id, creator handle
var unlikeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return {0, tonumber(redis.call('GET', KEYS[2]) or '0')}
end
if v ~= ARGV[1] then
	return {-1, 0}
end
redis.call('DEL', KEYS[1])
local c = tonumber(redis.call('GET', KEYS[2]) or '0')
if c > 0 then
	c = redis.call('DECR', KEYS[2])
end
local n = tonumber(ARGV[2])
for i = 3, #KEYS do
	local m = ARGV[4]
	if i < 3 + n then m = ARGV[3] end
	local s = tonumber(redis.call('ZINCRBY', KEYS[i], -1, m))
	if s <= 0 then
		redis.call('ZREM', KEYS[i], m)
	end
end
return {1, c}
`)

var decrFloorScript = redis.NewScript(`
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
if c > 0 then
	return redis.call('DECR', KEYS[1])
end
return 0
`)

// ARGV: member, delta
var adjustScript = redis.NewScript(`
for i = 1, #KEYS do
	local s = tonumber(redis.call('ZINCRBY', KEYS[i], ARGV[2], ARGV[1]))
	if s <= 0 then
		redis.call('ZREM', KEYS[i], ARGV[1])
	end
end
return 0
`)
