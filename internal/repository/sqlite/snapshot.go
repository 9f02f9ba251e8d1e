package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/artwall/internal/apperror"
	"github.com/sakif/artwall/internal/model"
	"github.com/sakif/artwall/internal/repository"
)

var _ repository.SnapshotRepository = (*DB)(nil)

// Save writes a snapshot and its entries in one transaction. ID and
// ArchivedAt are filled in when empty.
func (db *DB) Save(ctx context.Context, snap *model.Snapshot) error {
	if snap.ID == "" {
		snap.ID = xid.New().String()
	}
	if snap.ArchivedAt.IsZero() {
		snap.ArchivedAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning snapshot tx: %w", err)
	}
	// Rollback after Commit is a no-op
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, entity, scope, period, archived_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Entity, snap.Scope, snap.Period, snap.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_entries (snapshot_id, rank, member, score) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.Entries {
		if _, err := stmt.ExecContext(ctx, snap.ID, e.Rank, e.ID, e.Score); err != nil {
			return fmt.Errorf("sqlite: inserting entry %d: %w", e.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of one board.
func (db *DB) Latest(ctx context.Context, entity, scope, period string) (*model.Snapshot, error) {
	snap := model.Snapshot{Entity: entity, Scope: scope, Period: period}

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, archived_at FROM snapshots
		 WHERE entity = ? AND scope = ? AND period = ?
		 ORDER BY archived_at DESC, id DESC
		 LIMIT 1`,
		entity, scope, period,
	).Scan(&snap.ID, &snap.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snapshot", entity+":"+scope+":"+period)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading snapshot: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT rank, member, score FROM snapshot_entries
		 WHERE snapshot_id = ? ORDER BY rank`,
		snap.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading snapshot entries: %w", err)
	}
	defer rows.Close()

	snap.Entries = []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.ID, &e.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snapshot entry: %w", err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snapshot entries: %w", err)
	}

	return &snap, nil
}

// Periods lists the archived periods of a board, newest first.
func (db *DB) Periods(ctx context.Context, entity, scope string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT period FROM snapshots
		 WHERE entity = ? AND scope = ?
		 ORDER BY period DESC`,
		entity, scope,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing periods: %w", err)
	}
	defer rows.Close()

	periods := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
