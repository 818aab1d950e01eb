package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Seednode/whogotwho/game"
	"github.com/Seednode/whogotwho/store/migrations"
)

// SQLite persists each game as one JSON document row. Subscribers are
// notified in-process, so a database file should be served by one process
// at a time.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	broker *broker
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db, broker: newBroker()}, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new game.
func (s *SQLite) Create(ctx context.Context, g game.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("game id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g = g.Clone()
	g.Version = 1
	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game: %w", err)
	}
	now := toMillis(time.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, status, document, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, string(g.Status), string(doc), g.Version, toMillis(g.CreatedAt), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return game.ErrConflict
		}
		return fmt.Errorf("create game: %w", err)
	}
	s.broker.publish(game.Event{Game: g})
	return nil
}

// Get returns one game.
func (s *SQLite) Get(ctx context.Context, id string) (game.Game, error) {
	if err := ctx.Err(); err != nil {
		return game.Game{}, err
	}
	return s.load(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) load(ctx context.Context, q queryer, id string) (game.Game, error) {
	var doc string
	var version int64
	err := q.QueryRowContext(ctx, `SELECT document, version FROM games WHERE id = ?`, id).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Game{}, game.GameNotFound(id)
		}
		return game.Game{}, fmt.Errorf("get game: %w", err)
	}
	var g game.Game
	if err := json.Unmarshal([]byte(doc), &g); err != nil {
		return game.Game{}, fmt.Errorf("decode game %s: %w", id, err)
	}
	g.Version = version
	return g, nil
}

// Update applies mutate inside a transaction. The row is only written if
// its version is unchanged since it was read.
func (s *SQLite) Update(ctx context.Context, id string, mutate func(*game.Game) error) (game.Game, error) {
	if err := ctx.Err(); err != nil {
		return game.Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return game.Game{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.load(ctx, tx, id)
	if err != nil {
		return game.Game{}, err
	}
	next := current.Clone()
	if err := mutate(&next); err != nil {
		return game.Game{}, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return game.Game{}, fmt.Errorf("encode game: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE games SET status = ?, document = ?, version = ?, updated_at = ?
		  WHERE id = ? AND version = ?`,
		string(next.Status), string(doc), next.Version, toMillis(time.Now()), id, current.Version,
	)
	if err != nil {
		return game.Game{}, fmt.Errorf("update game: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return game.Game{}, fmt.Errorf("update game: %w", err)
	} else if n == 0 {
		return game.Game{}, fmt.Errorf("update game %s: concurrent write", id)
	}
	if err := tx.Commit(); err != nil {
		return game.Game{}, fmt.Errorf("commit game: %w", err)
	}

	s.broker.publish(game.Event{Game: next})
	return next.Clone(), nil
}

// Delete removes a game and notifies subscribers.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.load(ctx, s.db, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	s.broker.publish(game.Event{Game: last, Deleted: true})
	return nil
}

// List returns every game with the given status, oldest first.
func (s *SQLite) List(ctx context.Context, status game.Status) ([]game.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, version FROM games WHERE status = ? ORDER BY created_at ASC, id ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	out := make([]game.Game, 0)
	for rows.Next() {
		var id, doc string
		var version int64
		if err := rows.Scan(&id, &doc, &version); err != nil {
			return nil, fmt.Errorf("list games: %w", err)
		}
		var g game.Game
		if err := json.Unmarshal([]byte(doc), &g); err != nil {
			return nil, fmt.Errorf("decode game %s: %w", id, err)
		}
		g.Version = version
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return out, nil
}

// Subscribe registers fn for changes to one game, starting with the current
// document.
func (s *SQLite) Subscribe(ctx context.Context, id string, fn func(game.Event)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.broker.subscribe(ctx, g, fn), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ game.Store = (*SQLite)(nil)
