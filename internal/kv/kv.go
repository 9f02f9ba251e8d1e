// Package kv is the score store: like counters, per-voter like flags and the
// leaderboard sorted sets, all kept in Redis.
//
// KEY LAYOUT:
//
//	likes:count:<artworkID>            integer, never negative
//	likes:user:<voterID>:<artworkID>   unix time of the like (presence = liked)
//	lb:<entity>:<scope>:<period>       sorted set, member -> score
//
// ATOMICITY:
// Multi-key transitions (like, unlike, board decrements) run as Lua scripts
// so each one is applied atomically by the server. Unlike compares the flag
// it read against the flag it deletes; if another request changed it in
// between, the script returns ErrFlagChanged and the caller retries.
//
// REBUILDS:
// A rebuilt board is written under a temporary key and RENAMEd over the
// live one inside MULTI, so readers see either the old board or the new
// one, never a half-filled set. Maintenance jobs hold a redislock lock
// (lock:<name>) so two rebuilds or resets never interleave.
//
// SCANS:
// Key enumeration uses SCAN with a cap, never KEYS, so a large keyspace
// cannot block the server.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
)

// Entity names what a leaderboard ranks.
type Entity string

const (
	EntityArt          Entity = "art"          // artworks by likes
	EntityCreator      Entity = "creator"      // creators by uploads
	EntityCreatorLikes Entity = "creatorlikes" // creators by likes received
)

// ParseEntity maps request values onto an Entity.
func ParseEntity(s string) (Entity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "art", "artworks":
		return EntityArt, nil
	case "creator", "creators":
		return EntityCreator, nil
	case "creatorlikes", "creator-likes":
		return EntityCreatorLikes, nil
	}
	return "", fmt.Errorf("kv: unknown leaderboard entity %q", s)
}

const (
	countPrefix = "likes:count:"
	flagPrefix  = "likes:user:"
	boardPrefix = "lb:"
)

var ErrLocked = errors.New("kv: lock held by another job")

func CountKey(artworkID string) string { return countPrefix + artworkID }

func FlagKey(voterID, artworkID string) string {
	return flagPrefix + voterID + ":" + artworkID
}

func BoardKey(entity Entity, scope, periodKey string) string {
	return boardPrefix + string(entity) + ":" + scope + ":" + periodKey
}

// BoardPattern matches every period of one entity and scope.
func BoardPattern(entity Entity, scope string) string {
	return boardPrefix + string(entity) + ":" + scope + ":*"
}

// EntityPattern matches every board of one entity.
func EntityPattern(entity Entity) string {
	return boardPrefix + string(entity) + ":*"
}

// ScopeFromBoardKey extracts the scope part of a board key.
func ScopeFromBoardKey(key string) string {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return ""
	}
	return parts[2]
}

// PeriodFromBoardKey extracts the period part of a board key.
func PeriodFromBoardKey(key string) string {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return ""
	}
	return parts[3]
}

// Config holds the connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Member is one scored entry of a sorted set.
type Member struct {
	ID    string
	Score float64
}

// Store wraps a redis client with the operations the services need.
type Store struct {
	client *redis.Client
	locker *redislock.Client
}

// New dials Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: pinging redis at %s: %w", cfg.Addr, err)
	}

	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client. Tests use it with miniredis.
func NewFromClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		locker: redislock.New(client),
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Incr adds one to a counter.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

// DecrFloor subtracts one from a counter unless it is already zero.
func (s *Store) DecrFloor(ctx context.Context, key string) (int64, error) {
	res, err := decrFloorScript.Run(ctx, s.client, []string{key}).Int64()
	if err != nil {
		return 0, fmt.Errorf("kv: decrementing %s: %w", key, err)
	}
	return res, nil
}

// Count reads one counter; a missing key is zero.
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Counts reads the like counters of many artworks in one MGET.
func (s *Store) Counts(ctx context.Context, artworkIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(artworkIDs))
	if len(artworkIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(artworkIDs))
	for i, id := range artworkIDs {
		keys[i] = CountKey(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: reading like counts: %w", err)
	}
	for i, v := range vals {
		out[artworkIDs[i]] = parseInt(v)
	}
	return out, nil
}

// LikedAt returns the time a voter liked an artwork, or ok=false when the
// voter has not liked it.
func (s *Store) LikedAt(ctx context.Context, voterID, artworkID string) (at time.Time, raw string, ok bool, err error) {
	raw, err = s.client.Get(ctx, FlagKey(voterID, artworkID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, "", false, nil
	}
	if err != nil {
		return time.Time{}, "", false, err
	}
	unix, convErr := strconv.ParseInt(raw, 10, 64)
	if convErr != nil {
		// legacy flags stored "1"; treat them as liked at an unknown time
		return time.Time{}, raw, true, nil
	}
	return time.Unix(unix, 0).UTC(), raw, true, nil
}

// Flags reports which of the artworks the voter has liked.
func (s *Store) Flags(ctx context.Context, voterID string, artworkIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(artworkIDs))
	if len(artworkIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(artworkIDs))
	for i, id := range artworkIDs {
		keys[i] = FlagKey(voterID, id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: reading like flags: %w", err)
	}
	for i, v := range vals {
		out[artworkIDs[i]] = v != nil
	}
	return out, nil
}

// ZIncrBy adjusts one member's score.
func (s *Store) ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	return s.client.ZIncrBy(ctx, key, delta, member).Result()
}

// AdjustBoards adds delta to member on every key and drops the member from
// any board where its score falls to zero or below.
func (s *Store) AdjustBoards(ctx context.Context, keys []string, member string, delta float64) error {
	if len(keys) == 0 {
		return nil
	}
	if err := adjustScript.Run(ctx, s.client, keys, member, delta).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("kv: adjusting boards for %s: %w", member, err)
	}
	return nil
}

// RemoveFromBoards drops member from every key.
func (s *Store) RemoveFromBoards(ctx context.Context, keys []string, member string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.ZRem(ctx, k, member)
		}
		return nil
	})
	return err
}

// Top returns the highest scored members, best first. limit <= 0 means all.
func (s *Store) Top(ctx context.Context, key string, limit int) ([]Member, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: reading %s: %w", key, err)
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, Member{ID: id, Score: z.Score})
	}
	return out, nil
}

// Score reads one member's score; missing members score zero.
func (s *Store) Score(ctx context.Context, key, member string) (float64, error) {
	v, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// ReplaceSorted swaps the contents of a sorted set in one MULTI/EXEC. The
// new members are staged under a temporary key and RENAMEd over the target,
// so readers see either the old set or the complete new one.
func (s *Store) ReplaceSorted(ctx context.Context, key string, members []Member) error {
	tmp := key + ":rebuild"
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tmp)
		if len(members) == 0 {
			pipe.Del(ctx, key)
			return nil
		}
		zs := make([]*redis.Z, len(members))
		for i, m := range members {
			zs[i] = &redis.Z{Score: m.Score, Member: m.ID}
		}
		pipe.ZAdd(ctx, tmp, zs...)
		pipe.Rename(ctx, tmp, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv: replacing %s: %w", key, err)
	}
	return nil
}

// Del removes keys. Missing keys are not an error.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// ScanKeys walks the keyspace with SCAN and returns at most max keys matching
// pattern (max <= 0 means no cap). truncated is true when the cap was hit.
func (s *Store) ScanKeys(ctx context.Context, pattern string, max int) (keys []string, truncated bool, err error) {
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, false, fmt.Errorf("kv: scanning %s: %w", pattern, err)
		}
		for _, k := range batch {
			if max > 0 && len(keys) >= max {
				return keys, true, nil
			}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, false, nil
		}
		cursor = next
	}
}

// AllCounts reads every like counter, keyed by artwork id.
func (s *Store) AllCounts(ctx context.Context, max int) (map[string]int64, bool, error) {
	keys, truncated, err := s.ScanKeys(ctx, countPrefix+"*", max)
	if err != nil {
		return nil, false, err
	}

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, countPrefix)
	}

	out := make(map[string]int64, len(ids))
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		counts, err := s.Counts(ctx, ids[start:end])
		if err != nil {
			return nil, false, err
		}
		for id, n := range counts {
			out[id] = n
		}
	}
	return out, truncated, nil
}

// Lock takes a short-lived distributed lock. The returned func releases it.
func (s *Store) Lock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	lock, err := s.locker.Obtain(ctx, "lock:"+name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("kv: obtaining lock %s: %w", name, err)
	}
	return func() {
		// the lock expires on its own if release fails
		_ = lock.Release(context.Background())
	}, nil
}

func parseInt(v interface{}) int64 {
	switch x := v.(type) {
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	case int64:
		return x
	}
	return 0
}
