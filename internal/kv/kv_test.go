package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore starts an in-process redis (miniredis) for one test.
func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFromClient(client), mr
}

func target(voter, art string) LikeTarget {
	return LikeTarget{
		VoterID:       voter,
		ArtworkID:     art,
		Creator:       "mira",
		ArtBoards:     []string{BoardKey(EntityArt, "daily", "2025-10-11"), BoardKey(EntityArt, "all", "all")},
		CreatorBoards: []string{BoardKey(EntityCreatorLikes, "all", "all")},
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "likes:count:a1", CountKey("a1"))
	assert.Equal(t, "likes:user:v1:a1", FlagKey("v1", "a1"))
	assert.Equal(t, "lb:art:weekly:2025-W41", BoardKey(EntityArt, "weekly", "2025-W41"))
	assert.Equal(t, "2025-W41", PeriodFromBoardKey("lb:art:weekly:2025-W41"))
	assert.Equal(t, "", PeriodFromBoardKey("garbage"))
	assert.Equal(t, "weekly", ScopeFromBoardKey("lb:art:weekly:2025-W41"))
	assert.Equal(t, "lb:creator:daily:*", BoardPattern(EntityCreator, "daily"))
	assert.Equal(t, "lb:art:*", EntityPattern(EntityArt))
}

func TestParseEntity(t *testing.T) {
	e, err := ParseEntity("creators")
	require.NoError(t, err)
	assert.Equal(t, EntityCreator, e)

	e, err = ParseEntity("")
	require.NoError(t, err)
	assert.Equal(t, EntityArt, e)

	_, err = ParseEntity("galleries")
	assert.Error(t, err)
}

func TestLike_SecondLikeIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tg := target("v1", "a1")
	now := time.Unix(1760184000, 0)

	changed, count, err := s.Like(ctx, tg, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 1, count)

	changed, count, err = s.Like(ctx, tg, now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.EqualValues(t, 1, count)

	top, err := s.Top(ctx, BoardKey(EntityArt, "all", "all"), 10)
	require.NoError(t, err)
	assert.Equal(t, []Member{{ID: "a1", Score: 1}}, top)

	creators, err := s.Top(ctx, BoardKey(EntityCreatorLikes, "all", "all"), 10)
	require.NoError(t, err)
	assert.Equal(t, []Member{{ID: "mira", Score: 1}}, creators)
}

func TestUnlike_FloorsAtZeroAndClearsBoards(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	tg := target("v1", "a1")

	_, _, err := s.Like(ctx, tg, time.Unix(1760184000, 0))
	require.NoError(t, err)

	// counter drifted to zero behind our back
	require.NoError(t, mr.Set(CountKey("a1"), "0"))

	_, raw, ok, err := s.LikedAt(ctx, "v1", "a1")
	require.NoError(t, err)
	require.True(t, ok)

	changed, count, err := s.Unlike(ctx, tg, raw)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 0, count)

	top, err := s.Top(ctx, BoardKey(EntityArt, "all", "all"), 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, _, ok, err = s.LikedAt(ctx, "v1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnlike_NotLikedIsNoop(t *testing.T) {
	s, _ := newTestStore(t)

	changed, count, err := s.Unlike(context.Background(), target("v1", "a1"), "123")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.EqualValues(t, 0, count)
}

func TestUnlike_StaleExpectedValue(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	tg := target("v1", "a1")

	_, _, err := s.Like(ctx, tg, time.Unix(1760184000, 0))
	require.NoError(t, err)

	_, _, err = s.Unlike(ctx, tg, "1")
	assert.ErrorIs(t, err, ErrFlagChanged)

	n, err := s.Count(ctx, CountKey("a1"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLike_ConcurrentVotersCountExactly(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voter := "v" + string(rune('a'+i))
			_, _, err := s.Like(ctx, target(voter, "a1"), time.Now())
			assert.NoError(t, err)
			// same voter again must not double count
			_, _, err = s.Like(ctx, target(voter, "a1"), time.Now())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx, CountKey("a1"))
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
}

func TestDecrFloor(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n, err := s.DecrFloor(ctx, "c")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = s.Incr(ctx, "c")
	require.NoError(t, err)
	n, err = s.DecrFloor(ctx, "c")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = s.DecrFloor(ctx, "c")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestCountsAndFlags(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(CountKey("a1"), "4"))
	require.NoError(t, mr.Set(FlagKey("v1", "a2"), "1760184000"))

	counts, err := s.Counts(ctx, []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a1": 4, "a2": 0}, counts)

	flags, err := s.Flags(ctx, "v1", []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a1": false, "a2": true}, flags)
}

func TestAdjustBoards_RemovesNonPositive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	keys := []string{BoardKey(EntityCreator, "all", "all"), BoardKey(EntityCreator, "daily", "2025-10-11")}

	require.NoError(t, s.AdjustBoards(ctx, keys, "mira", 1))
	require.NoError(t, s.AdjustBoards(ctx, keys, "mira", 1))
	require.NoError(t, s.AdjustBoards(ctx, keys[:1], "mira", -1))
	require.NoError(t, s.AdjustBoards(ctx, keys[1:], "mira", -2))

	all, err := s.Top(ctx, keys[0], 0)
	require.NoError(t, err)
	assert.Equal(t, []Member{{ID: "mira", Score: 1}}, all)

	daily, err := s.Top(ctx, keys[1], 0)
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestReplaceSorted(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	key := BoardKey(EntityArt, "all", "all")

	_, err := s.ZIncrBy(ctx, key, "stale", 9)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceSorted(ctx, key, []Member{{ID: "a", Score: 3}, {ID: "b", Score: 5}}))

	top, err := s.Top(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, []Member{{ID: "b", Score: 5}, {ID: "a", Score: 3}}, top)
	assert.False(t, mr.Exists(key+":rebuild"))

	require.NoError(t, s.ReplaceSorted(ctx, key, nil))
	assert.False(t, mr.Exists(key))
}

func TestScanKeysAndAllCounts(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, mr.Set(CountKey(id), "2"))
	}
	require.NoError(t, mr.Set("unrelated", "x"))

	keys, truncated, err := s.ScanKeys(ctx, "likes:count:*", 2)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.True(t, truncated)

	counts, truncated, err := s.AllCounts(ctx, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, map[string]int64{"a": 2, "b": 2, "c": 2}, counts)
}

func TestLock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	release, err := s.Lock(ctx, "rebuild", time.Minute)
	require.NoError(t, err)

	_, err = s.Lock(ctx, "rebuild", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	release2, err := s.Lock(ctx, "rebuild", time.Minute)
	require.NoError(t, err)
	release2()
}
