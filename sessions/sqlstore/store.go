// Package sqlstore persists session markers in SQLite so sessions survive a console restart
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	consoleerrors "github.com/jrsteele09/device-console/internal/errors"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS console_sessions (
	id         TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS console_sessions_expires_at ON console_sessions (expires_at);`

// Store implements sessions.Store on database/sql. Events are only delivered
// within this process.
type Store struct {
	db     *sql.DB
	codec  sessions.Codec
	events *sessions.Broadcaster
	now    func() time.Time
}

var _ sessions.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database at path
func Open(ctx context.Context, path string, codec sessions.Codec) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite database %s", path)
	}
	// SQLite serialises writers, one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db, codec)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and creates the schema
func New(ctx context.Context, db *sql.DB, codec sessions.Codec) (*Store, error) {
	if codec == nil {
		codec = sessions.JSONCodec{}
	}
	s := &Store{
		db:     db,
		codec:  codec,
		events: sessions.NewBroadcaster(),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create session schema")
	}
	return nil
}

func (s *Store) Put(ctx context.Context, m *sessions.Marker) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("sessionID is required")
	}
	data, err := s.codec.Encode(m)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO console_sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		m.ID, data, m.ExpiresAt.UnixNano())
	if err != nil {
		return errors.Wrapf(err, "store session %s", m.ID)
	}

	s.events.Publish(sessions.Event{Kind: sessions.EventPut, SessionID: m.ID})
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*sessions.Marker, error) {
	if id == "" {
		return nil, consoleerrors.Wrapf(consoleerrors.ErrSessionNotFound, "empty session id")
	}

	var (
		data      []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, expires_at FROM console_sessions WHERE id = ?`, id).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, consoleerrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session %s", id)
	}

	if s.now().UnixNano() >= expiresAt {
		if err := s.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, consoleerrors.ErrSessionNotFound
	}

	m, err := s.codec.Decode(data)
	if err != nil {
		return nil, consoleerrors.Wrapf(consoleerrors.ErrSessionInvalid, "session %s: %v", id, err)
	}
	return m, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM console_sessions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete session %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.events.Publish(sessions.Event{Kind: sessions.EventDelete, SessionID: id})
	}
	return nil
}

// PurgeExpired removes expired rows and returns how many were deleted
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM console_sessions WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "purge expired sessions")
	}
	return res.RowsAffected()
}

func (s *Store) Subscribe(ctx context.Context) (<-chan sessions.Event, error) {
	return s.events.Subscribe(ctx)
}

func (s *Store) Close() error {
	s.events.Close()
	return s.db.Close()
}
