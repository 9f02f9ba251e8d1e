package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/kv"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/period"
	"github.com/sakif/artwall/internal/repository"
)

// Creator metrics.
const (
	MetricUploads = "uploads"
	MetricLikes   = "likes"
)

// AllPeriods asks Reset to clear every period of a scope.
const AllPeriods = "*"

const (
	maintenanceLock    = "leaderboard"
	maintenanceLockTTL = 5 * time.Minute
	counterScanCap     = 100000
	periodScanCap      = 2000
	joinWorkers        = 8
)

// BoardQuery selects one leaderboard.
type BoardQuery struct {
	Entity string
	Scope  string
	Period string // empty means the current period
	Limit  int
	Metric string // creators only: uploads (default) or likes
}

// RebuildResult describes a rebuilt board.
type RebuildResult struct {
	Key       string `json:"key"`
	Members   int    `json:"members"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ResetResult lists the cleared boards.
type ResetResult struct {
	Keys     []string `json:"keys"`
	Archived int      `json:"archived"`
}

// LeaderboardService reads ranked boards and runs the maintenance jobs that
// rebuild and reset them.
type LeaderboardService struct {
	repo    repository.ArtworkRepository
	archive repository.SnapshotRepository
	store   *kv.Store
	calc    *period.Calculator
	logger  *slog.Logger
	now     func() time.Time
}

// NewLeaderboardService wires the service. archive may be nil, in which
// case resets are not archived and past periods come from Redis only.
func NewLeaderboardService(
	repo repository.ArtworkRepository,
	archive repository.SnapshotRepository,
	store *kv.Store,
	calc *period.Calculator,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		repo:    repo,
		archive: archive,
		store:   store,
		calc:    calc,
		logger:  logger,
		now:     time.Now,
	}
}

// Top dispatches a query to TopArt or TopCreators.
func (s *LeaderboardService) Top(ctx context.Context, q BoardQuery) (*model.Leaderboard, error) {
	entity, err := kv.ParseEntity(q.Entity)
	if err != nil {
		return nil, apperror.ValidationFailed("entity", "entity must be art or creators")
	}
	switch entity {
	case kv.EntityArt:
		return s.TopArt(ctx, q.Scope, q.Period, q.Limit)
	case kv.EntityCreatorLikes:
		return s.TopCreators(ctx, q.Scope, q.Period, q.Limit, MetricLikes)
	default:
		return s.TopCreators(ctx, q.Scope, q.Period, q.Limit, q.Metric)
	}
}

// TopArt ranks artworks by likes. Artworks that no longer exist are skipped.
func (s *LeaderboardService) TopArt(ctx context.Context, scope, periodKey string, limit int) (*model.Leaderboard, error) {
	sc, key, err := s.resolve(scope, periodKey)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultBoardLimit, MaxBoardLimit)

	lb := &model.Leaderboard{Entity: string(kv.EntityArt), Scope: string(sc), Period: key, Entries: []model.LeaderboardEntry{}}

	// over-fetch so deleted artworks do not leave the board short
	members, err := s.read(ctx, kv.EntityArt, sc, key, limit*2)
	if err != nil {
		lb.Degraded = true
		return lb, nil
	}

	arts, err := s.join(ctx, members)
	if err != nil {
		s.logger.Error("failed to join leaderboard metadata", slog.String("period", key), slog.String("error", err.Error()))
		lb.Degraded = true
		return lb, nil
	}

	for i, m := range members {
		if arts[i] == nil {
			continue
		}
		pub := arts[i].ToPublic(0)
		lb.Entries = append(lb.Entries, model.LeaderboardEntry{
			Rank:    len(lb.Entries) + 1,
			ID:      m.ID,
			Score:   m.Score,
			Artwork: &pub,
		})
		if len(lb.Entries) == limit {
			break
		}
	}
	s.fillCounts(ctx, lb.Entries)
	return lb, nil
}

// TopCreators ranks creator handles by uploads or by likes received.
func (s *LeaderboardService) TopCreators(ctx context.Context, scope, periodKey string, limit int, metric string) (*model.Leaderboard, error) {
	entity := kv.EntityCreator
	switch metric {
	case "", MetricUploads:
		metric = MetricUploads
	case MetricLikes:
		entity = kv.EntityCreatorLikes
	default:
		return nil, apperror.ValidationFailed("metric", "metric must be uploads or likes")
	}

	sc, key, err := s.resolve(scope, periodKey)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultBoardLimit, MaxBoardLimit)

	lb := &model.Leaderboard{Entity: "creators", Scope: string(sc), Period: key, Metric: metric, Entries: []model.LeaderboardEntry{}}

	members, err := s.read(ctx, entity, sc, key, limit)
	if err != nil {
		lb.Degraded = true
		return lb, nil
	}
	for i, m := range members {
		lb.Entries = append(lb.Entries, model.LeaderboardEntry{Rank: i + 1, ID: m.ID, Score: m.Score})
	}
	return lb, nil
}

// read returns the live board, falling back to the archived snapshot of a
// board that has been reset. An error means the store could not be read;
// it is logged here.
func (s *LeaderboardService) read(ctx context.Context, entity kv.Entity, scope period.Scope, key string, limit int) ([]kv.Member, error) {
	members, err := s.store.Top(ctx, kv.BoardKey(entity, string(scope), key), limit)
	if err != nil {
		s.logger.Error("failed to read leaderboard",
			slog.String("entity", string(entity)),
			slog.String("scope", string(scope)),
			slog.String("period", key),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if len(members) > 0 || s.archive == nil {
		return members, nil
	}

	snap, err := s.archive.Latest(ctx, string(entity), string(scope), key)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("failed to read archived leaderboard", slog.String("period", key), slog.String("error", err.Error()))
		}
		return members, nil
	}
	for _, e := range snap.Entries {
		if limit > 0 && len(members) == limit {
			break
		}
		members = append(members, kv.Member{ID: e.ID, Score: e.Score})
	}
	return members, nil
}

// join loads artwork metadata for each member concurrently. Missing
// artworks come back as nil.
func (s *LeaderboardService) join(ctx context.Context, members []kv.Member) ([]*model.Artwork, error) {
	out := make([]*model.Artwork, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(joinWorkers)
	for i, m := range members {
		i, m := i, m
		g.Go(func() error {
			a, err := s.repo.GetByID(gctx, m.ID)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	return out, g.Wait()
}

func (s *LeaderboardService) fillCounts(ctx context.Context, entries []model.LeaderboardEntry) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	counts, err := s.store.Counts(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to read like counts", slog.String("error", err.Error()))
		return
	}
	for i := range entries {
		entries[i].Artwork.Likes = counts[entries[i].ID]
	}
}

// resolve validates the scope and period, defaulting the period to the
// current one.
func (s *LeaderboardService) resolve(scope, periodKey string) (period.Scope, string, error) {
	if scope == "" {
		scope = string(period.AllTime)
	}
	sc, err := period.ParseScope(scope)
	if err != nil {
		return "", "", apperror.ValidationFailed("scope", "scope must be daily, weekly, monthly or all")
	}
	if periodKey == "" {
		key, err := s.calc.Key(sc, s.now())
		if err != nil {
			return "", "", err
		}
		return sc, key, nil
	}
	if err := s.calc.Validate(sc, periodKey); err != nil {
		return "", "", apperror.ValidationFailed("period", fmt.Sprintf("period %q is not a valid %s period", periodKey, sc))
	}
	return sc, periodKey, nil
}

// Rebuild recomputes one board from the source data and swaps it in
// atomically.
//
// SOURCES PER ENTITY:
//
//   - art, any scope: every like counter with a positive value
//   - creator: uploads created within the period, from a metadata scan
//   - creatorlikes: every like counter, summed per creator
//
// Like counters carry no timestamps, so a rebuilt period board of art or
// creatorlikes is seeded from lifetime totals.
func (s *LeaderboardService) Rebuild(ctx context.Context, entityName, scope, periodKey string) (*RebuildResult, error) {
	entity, err := kv.ParseEntity(entityName)
	if err != nil {
		return nil, apperror.ValidationFailed("entity", "entity must be art, creators or creatorlikes")
	}
	sc, key, err := s.resolve(scope, periodKey)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := s.now()
	var (
		scores    map[string]int64
		truncated bool
	)
	switch entity {
	case kv.EntityArt:
		scores, truncated, err = s.store.AllCounts(ctx, counterScanCap)
	case kv.EntityCreatorLikes:
		scores, truncated, err = s.creatorLikeScores(ctx)
	default:
		scores, truncated, err = s.uploadScores(ctx, sc, key)
	}
	if err != nil {
		s.logger.Error("leaderboard rebuild failed", slog.String("entity", string(entity)), slog.String("error", err.Error()))
		return nil, fmt.Errorf("rebuilding leaderboard: %w", err)
	}

	members := make([]kv.Member, 0, len(scores))
	for id, n := range scores {
		if n > 0 {
			members = append(members, kv.Member{ID: id, Score: float64(n)})
		}
	}

	boardKey := kv.BoardKey(entity, string(sc), key)
	if err := s.store.ReplaceSorted(ctx, boardKey, members); err != nil {
		return nil, fmt.Errorf("rebuilding leaderboard: %w", err)
	}

	s.logger.Info("leaderboard rebuilt",
		slog.String("key", boardKey),
		slog.Int("members", len(members)),
		slog.Bool("truncated", truncated),
		slog.Duration("duration", s.now().Sub(start)),
	)
	return &RebuildResult{Key: boardKey, Members: len(members), Truncated: truncated}, nil
}

// uploadScores counts the artworks each creator uploaded within
// (scope, key).
func (s *LeaderboardService) uploadScores(ctx context.Context, sc period.Scope, key string) (map[string]int64, bool, error) {
	scores := make(map[string]int64)
	truncated, err := s.repo.Scan(ctx, func(a model.Artwork) error {
		if c := a.Creator(); c != "" && s.calc.Contains(sc, key, a.CreatedAt) {
			scores[c]++
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return scores, truncated, nil
}

// creatorLikeScores groups every like counter by the creator of its
// artwork. Counters of deleted artworks have no metadata and are skipped.
func (s *LeaderboardService) creatorLikeScores(ctx context.Context) (map[string]int64, bool, error) {
	counts, truncated, err := s.store.AllCounts(ctx, counterScanCap)
	if err != nil {
		return nil, false, err
	}

	scores := make(map[string]int64)
	scanTruncated, err := s.repo.Scan(ctx, func(a model.Artwork) error {
		if c := a.Creator(); c != "" {
			scores[c] += counts[a.ID]
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return scores, truncated || scanTruncated, nil
}

// Reset archives a board and deletes it. periodKey AllPeriods clears every
// period of the scope.
func (s *LeaderboardService) Reset(ctx context.Context, entityName, scope, periodKey string) (*ResetResult, error) {
	entity, err := kv.ParseEntity(entityName)
	if err != nil {
		return nil, apperror.ValidationFailed("entity", "entity must be art, creators or creatorlikes")
	}

	var sc period.Scope
	key := periodKey
	if periodKey == AllPeriods {
		if sc, err = period.ParseScope(scope); err != nil {
			return nil, apperror.ValidationFailed("scope", "scope must be daily, weekly, monthly or all")
		}
	} else if sc, key, err = s.resolve(scope, periodKey); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	keys := []string{kv.BoardKey(entity, string(sc), key)}
	if periodKey == AllPeriods {
		keys, _, err = s.store.ScanKeys(ctx, kv.BoardPattern(entity, string(sc)), 0)
		if err != nil {
			return nil, fmt.Errorf("listing boards: %w", err)
		}
	}

	res := &ResetResult{Keys: []string{}}
	for _, key := range keys {
		archived, err := s.archiveBoard(ctx, entity, key)
		if err != nil {
			s.logger.Error("failed to archive leaderboard", slog.String("key", key), slog.String("error", err.Error()))
			return res, fmt.Errorf("archiving %s: %w", key, err)
		}
		if err := s.store.Del(ctx, key); err != nil {
			return res, fmt.Errorf("clearing %s: %w", key, err)
		}
		if archived {
			res.Archived++
		}
		res.Keys = append(res.Keys, key)
	}

	s.logger.Info("leaderboards reset", slog.Int("boards", len(res.Keys)), slog.Int("archived", res.Archived))
	return res, nil
}

func (s *LeaderboardService) archiveBoard(ctx context.Context, entity kv.Entity, key string) (bool, error) {
	if s.archive == nil {
		return false, nil
	}
	members, err := s.store.Top(ctx, key, 0)
	if err != nil {
		return false, err
	}
	if len(members) == 0 {
		return false, nil
	}

	snap := &model.Snapshot{
		Entity:  string(entity),
		Scope:   kv.ScopeFromBoardKey(key),
		Period:  kv.PeriodFromBoardKey(key),
		Entries: make([]model.LeaderboardEntry, len(members)),
	}
	for i, m := range members {
		snap.Entries[i] = model.LeaderboardEntry{Rank: i + 1, ID: m.ID, Score: m.Score}
	}
	return true, s.archive.Save(ctx, snap)
}

// Periods lists the periods that have a live or archived board, newest
// first.
func (s *LeaderboardService) Periods(ctx context.Context, entityName, scope string) ([]string, error) {
	entity, err := kv.ParseEntity(entityName)
	if err != nil {
		return nil, apperror.ValidationFailed("entity", "entity must be art, creators or creatorlikes")
	}
	sc, err := period.ParseScope(scope)
	if err != nil {
		return nil, apperror.ValidationFailed("scope", "scope must be daily, weekly, monthly or all")
	}

	seen := make(map[string]struct{})
	keys, _, err := s.store.ScanKeys(ctx, kv.BoardPattern(entity, string(sc)), periodScanCap)
	if err != nil {
		s.logger.Error("failed to scan leaderboards", slog.String("error", err.Error()))
	}
	for _, k := range keys {
		if p := kv.PeriodFromBoardKey(k); p != "" {
			seen[p] = struct{}{}
		}
	}

	if s.archive != nil {
		archived, err := s.archive.Periods(ctx, string(entity), string(sc))
		if err != nil {
			return nil, fmt.Errorf("listing archived periods: %w", err)
		}
		for _, p := range archived {
			seen[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	// period keys of one scope sort chronologically as strings
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func (s *LeaderboardService) lock(ctx context.Context) (func(), error) {
	unlock, err := s.store.Lock(ctx, maintenanceLock, maintenanceLockTTL)
	if errors.Is(err, kv.ErrLocked) {
		return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "another leaderboard job is running"}
	}
	if err != nil {
		return nil, err
	}
	return unlock, nil
}
