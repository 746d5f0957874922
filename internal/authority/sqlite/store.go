// Package sqlite persists the authority's delta journal and restore
// snapshots in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onekgame/onek/internal/authority"
	"github.com/onekgame/onek/internal/authority/sqlite/migrations"
	"github.com/onekgame/onek/internal/codec"
	"github.com/onekgame/onek/internal/platform/storage/sqlitemigrate"
	"github.com/onekgame/onek/internal/schema"
)

// Store is a SQLite-backed authority.Journal. The deltas table is the
// append-only commit chain; snapshots are periodic restore shortcuts.
type Store struct {
	sqlDB *sql.DB
}

var _ authority.Journal = (*Store)(nil)

// Open opens (or creates) the journal database at the provided path
// and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.JournalFS, "journal"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database. Nil-safe so callers can defer
// it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append records one committed delta. The version primary key makes a
// duplicate or out-of-order append a hard error rather than silent
// corruption.
func (s *Store) Append(ctx context.Context, delta schema.Delta) error {
	effects, err := codec.Marshal(delta.Effects)
	if err != nil {
		return fmt.Errorf("encode effects: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO deltas (version, tx_id, hash, prev_hash, effects, committed_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		delta.Version, delta.TxID, delta.Hash, delta.PrevHash, effects, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert delta %d: %w", delta.Version, err)
	}
	return nil
}

// DeltasSince returns every journaled delta after fromVersion in
// ascending version order.
func (s *Store) DeltasSince(ctx context.Context, fromVersion uint64) ([]schema.Delta, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT version, tx_id, hash, prev_hash, effects
FROM deltas WHERE version > ? ORDER BY version ASC`, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("query deltas: %w", err)
	}
	defer rows.Close()

	var out []schema.Delta
	for rows.Next() {
		var d schema.Delta
		var effects []byte
		if err := rows.Scan(&d.Version, &d.TxID, &d.Hash, &d.PrevHash, &effects); err != nil {
			return nil, fmt.Errorf("scan delta: %w", err)
		}
		if err := codec.Unmarshal(effects, &d.Effects); err != nil {
			return nil, fmt.Errorf("decode delta %d effects: %w", d.Version, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read deltas: %w", err)
	}
	return out, nil
}

// SaveSnapshot records a restore snapshot and drops older ones; the
// delta chain itself is never pruned, so full replay from genesis
// stays possible.
func (s *Store) SaveSnapshot(ctx context.Context, snap schema.Snapshot) error {
	world, err := codec.Marshal(snap.World)
	if err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO snapshots (version, world, taken_at)
VALUES (?, ?, ?)`, snap.World.Version, world, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("insert snapshot %d: %w", snap.World.Version, err)
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM snapshots WHERE version < ?`, snap.World.Version); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest saved snapshot, if any.
func (s *Store) LatestSnapshot(ctx context.Context) (schema.Snapshot, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT world FROM snapshots ORDER BY version DESC LIMIT 1`)
	var world []byte
	if err := row.Scan(&world); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Snapshot{}, false, nil
		}
		return schema.Snapshot{}, false, fmt.Errorf("query snapshot: %w", err)
	}
	var snap schema.Snapshot
	if err := codec.Unmarshal(world, &snap.World); err != nil {
		return schema.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
