package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/model"
)

// newTestDB opens a fresh in-memory archive, closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func saveTestSnapshot(t *testing.T, db *DB, period string, at time.Time, entries ...model.LeaderboardEntry) *model.Snapshot {
	t.Helper()
	snap := &model.Snapshot{Entity: "art", Scope: "daily", Period: period, ArchivedAt: at, Entries: entries}
	if err := db.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return snap
}

func TestSave_FillsIDAndTime(t *testing.T) {
	db := newTestDB(t)

	snap := &model.Snapshot{Entity: "art", Scope: "daily", Period: "2025-10-11"}
	if err := db.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if snap.ID == "" {
		t.Error("Save() did not set ID")
	}
	if snap.ArchivedAt.IsZero() {
		t.Error("Save() did not set ArchivedAt")
	}
}

func TestLatest_ReturnsNewestWithEntries(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC)

	saveTestSnapshot(t, db, "2025-10-11", base,
		model.LeaderboardEntry{Rank: 1, ID: "old", Score: 1})
	saveTestSnapshot(t, db, "2025-10-11", base.Add(time.Hour),
		model.LeaderboardEntry{Rank: 1, ID: "a", Score: 5},
		model.LeaderboardEntry{Rank: 2, ID: "b", Score: 3})

	got, err := db.Latest(context.Background(), "art", "daily", "2025-10-11")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("Latest() entries = %d, want 2", len(got.Entries))
	}
	if got.Entries[0].ID != "a" || got.Entries[0].Score != 5 {
		t.Errorf("first entry = %+v, want a/5", got.Entries[0])
	}
	if got.Entries[1].Rank != 2 {
		t.Errorf("second rank = %d, want 2", got.Entries[1].Rank)
	}
}

func TestLatest_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Latest(context.Background(), "art", "daily", "1999-01-01")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestPeriods_DistinctNewestFirst(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	saveTestSnapshot(t, db, "2025-10-10", now)
	saveTestSnapshot(t, db, "2025-10-11", now)
	saveTestSnapshot(t, db, "2025-10-11", now.Add(time.Minute))

	got, err := db.Periods(context.Background(), "art", "daily")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	want := []string{"2025-10-11", "2025-10-10"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Periods() = %v, want %v", got, want)
	}

	other, err := db.Periods(context.Background(), "creator", "daily")
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Periods() for other board = %v, want empty", other)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
