package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "firstsync/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, at, season, fetched, created, updated, skipped, dry_run, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.Format(time.RFC3339Nano), e.Season,
		e.Fetched, e.Created, e.Updated, e.Skipped,
		boolInt(e.DryRun), nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqliteStore) PutEventHash(ctx context.Context, externalID string, hash uint64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	key := strings.TrimSpace(externalID)
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_hashes(external_id, hash, updated_at) VALUES(?,?,?)
		 ON CONFLICT(external_id) DO UPDATE SET hash=excluded.hash, updated_at=excluded.updated_at`,
		// SQLite integers are signed; the conversion round-trips losslessly.
		key, int64(hash), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetEventHash(ctx context.Context, externalID string) (uint64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	key := strings.TrimSpace(externalID)
	if key == "" {
		return 0, false, nil
	}
	var h int64
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM event_hashes WHERE external_id = ?`, key).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(h), true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
