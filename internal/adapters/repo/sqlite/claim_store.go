package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
)

const (
	statePathKey = "state.path"
	defaultFile  = "claims.db"
	stateDir     = ".pocketfi"
)

// ClaimStore keeps claim windows in SQLite. Monotonicity is enforced by the
// upsert itself, so concurrent writers from several processes stay safe.
type ClaimStore struct {
	db    *sql.DB
	path  string
	clock ports.Clock
}

var _ ports.ClaimStore = (*ClaimStore)(nil)

func NewClaimStore(cfg *viper.Viper) (*ClaimStore, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(statePathKey)
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, stateDir, defaultFile)
	}

	return Open(path)
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*ClaimStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create claims database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open claims database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping claims database: %w", err)
	}

	store := &ClaimStore{db: db, path: path, clock: ports.SystemClock{}}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate claims database: %w", err)
	}

	return store, nil
}

func (s *ClaimStore) Path() string {
	return s.path
}

func (s *ClaimStore) Close() error {
	return s.db.Close()
}

func (s *ClaimStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("unsupported claims schema version %d (current %d)", current, schemaVersion)
	}
	if current == 0 {
		_, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	}

	for v := current + 1; v <= schemaVersion; v++ {
		migration, ok := migrations[v]
		if !ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("run migration %d: %w", v, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
	}

	return nil
}

func (s *ClaimStore) Get(ctx context.Context, id domain.AccountID) (domain.ClaimWindow, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT account_id, claim_time, updated_at, halted, halt_reason FROM claim_windows WHERE account_id = ?",
		string(id),
	)

	window, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ClaimWindow{AccountID: id}, nil
	}
	if err != nil {
		return domain.ClaimWindow{}, fmt.Errorf("get claim window %s: %w", id, err)
	}

	return window, nil
}

func (s *ClaimStore) List(ctx context.Context) ([]domain.ClaimWindow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT account_id, claim_time, updated_at, halted, halt_reason FROM claim_windows ORDER BY account_id",
	)
	if err != nil {
		return nil, fmt.Errorf("list claim windows: %w", err)
	}
	defer rows.Close()

	var windows []domain.ClaimWindow
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim window: %w", err)
		}
		windows = append(windows, window)
	}

	return windows, rows.Err()
}

func (s *ClaimStore) Set(ctx context.Context, id domain.AccountID, nextEligibleAt time.Time) error {
	next := ceilUnix(nextEligibleAt)

	result, err := s.db.ExecContext(ctx, `
INSERT INTO claim_windows (account_id, claim_time, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(account_id) DO UPDATE SET
    claim_time = excluded.claim_time,
    updated_at = excluded.updated_at
WHERE excluded.claim_time > claim_windows.claim_time`,
		string(id), next, s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set claim window %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set claim window %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrStaleWindow)
	}

	return nil
}

func (s *ClaimStore) MarkHalted(ctx context.Context, id domain.AccountID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO claim_windows (account_id, updated_at, halted, halt_reason)
VALUES (?, ?, 1, ?)
ON CONFLICT(account_id) DO UPDATE SET
    updated_at = excluded.updated_at,
    halted = 1,
    halt_reason = excluded.halt_reason`,
		string(id), s.clock.Now().Unix(), reason,
	)
	if err != nil {
		return fmt.Errorf("mark claim window %s halted: %w", id, err)
	}

	return nil
}

func (s *ClaimStore) Reset(ctx context.Context, id domain.AccountID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE claim_windows SET halted = 0, halt_reason = '', updated_at = ? WHERE account_id = ?",
		s.clock.Now().Unix(), string(id),
	)
	if err != nil {
		return fmt.Errorf("reset claim window %s: %w", id, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWindow(row scanner) (domain.ClaimWindow, error) {
	var (
		id         string
		claimTime  int64
		updatedAt  int64
		halted     bool
		haltReason string
	)
	if err := row.Scan(&id, &claimTime, &updatedAt, &halted, &haltReason); err != nil {
		return domain.ClaimWindow{}, err
	}

	return domain.ClaimWindow{
		AccountID:      domain.AccountID(id),
		NextEligibleAt: unixTime(claimTime),
		UpdatedAt:      unixTime(updatedAt),
		Halted:         halted,
		HaltReason:     haltReason,
	}, nil
}

func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}

	return sec
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0).UTC()
}
