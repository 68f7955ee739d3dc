package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/logger"
)

// SQLiteStore persists sessions to a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases whole
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, log: log, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite session store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			scope       TEXT    NOT NULL,
			banner_type TEXT    NOT NULL,
			id          TEXT    NOT NULL,
			state       TEXT    NOT NULL,
			version     INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (scope, banner_type)
		)`,
		`CREATE TABLE IF NOT EXISTS usage (
			day         TEXT    NOT NULL,
			scope       TEXT    NOT NULL,
			banner_type TEXT    NOT NULL,
			calls       INTEGER NOT NULL,
			PRIMARY KEY (day, scope, banner_type)
		)`,
		`CREATE TABLE IF NOT EXISTS scopes (
			scope     TEXT PRIMARY KEY,
			last_seen INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key Key) (Session, error) {
	var (
		id, state string
		version   int64
		updated   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, version, updated_at FROM sessions WHERE scope = ? AND banner_type = ?`,
		key.Scope, key.BannerType,
	).Scan(&id, &state, &version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return fresh(key), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	sess := Session{Key: key, Version: version, UpdatedAt: time.UnixMilli(updated).UTC()}
	if sess.ID, err = uuid.Parse(id); err != nil {
		sess.ID = uuid.New()
	}
	var ps gacha.PityState
	if err := json.Unmarshal([]byte(state), &ps); err != nil {
		s.log.Warn().Err(err).Str("scope", key.Scope).Str("banner", key.BannerType).Msg("unreadable session state, restarting pity")
		return sess, nil
	}
	if err := ps.Validate(0); err != nil {
		s.log.Warn().Err(err).Str("scope", key.Scope).Str("banner", key.BannerType).Msg("invalid session state, restarting pity")
		return sess, nil
	}
	sess.State = ps
	return sess, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess Session) (Session, error) {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	now := s.now().UTC()

	var res sql.Result
	if sess.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (scope, banner_type, id, state, version, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?)
			 ON CONFLICT (scope, banner_type) DO NOTHING`,
			sess.Key.Scope, sess.Key.BannerType, sess.ID.String(), string(state), now.UnixMilli())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET state = ?, version = version + 1, updated_at = ?
			 WHERE scope = ? AND banner_type = ? AND version = ?`,
			string(state), now.UnixMilli(), sess.Key.Scope, sess.Key.BannerType, sess.Version)
	}
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	if n == 0 {
		return Session{}, ErrVersionConflict
	}
	sess.Version++
	sess.UpdatedAt = now.Truncate(time.Millisecond)
	return sess, nil
}

func (s *SQLiteStore) IncrUsage(ctx context.Context, day string, key Key, limit int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("usage: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage WHERE day < ?`, oldestKept(day)); err != nil {
		return 0, false, fmt.Errorf("prune usage: %w", err)
	}
	var n int
	err = tx.QueryRowContext(ctx,
		`SELECT calls FROM usage WHERE day = ? AND scope = ? AND banner_type = ?`,
		day, key.Scope, key.BannerType,
	).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("read usage: %w", err)
	}
	if limit > 0 && n >= limit {
		return n, false, tx.Commit()
	}
	n++
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage (day, scope, banner_type, calls) VALUES (?, ?, ?, ?)
		 ON CONFLICT (day, scope, banner_type) DO UPDATE SET calls = excluded.calls`,
		day, key.Scope, key.BannerType, n,
	); err != nil {
		return 0, false, fmt.Errorf("write usage: %w", err)
	}
	return n, true, tx.Commit()
}

func (s *SQLiteStore) TouchScope(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scopes (scope, last_seen) VALUES (?, ?)
		 ON CONFLICT (scope) DO UPDATE SET last_seen = excluded.last_seen`,
		scope, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("touch scope: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope FROM scopes ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, fmt.Errorf("list scopes: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
