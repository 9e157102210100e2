package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresStore keeps sessions and messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and runs pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.Connect(connectCtx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases all pool connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}

	for _, m := range migrations {
		err := s.withTx(ctx, func(tx pgx.Tx) error {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_version WHERE version = $1)`, m.version).Scan(&exists); err != nil {
				return fmt.Errorf("checking migration %d: %w", m.version, err)
			}
			if exists {
				return nil
			}
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("applying migration %d: %w", m.version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.version); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn in a transaction, committing on success and rolling back
// otherwise.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context) (Session, error) {
	sess := Session{ID: newSessionID()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id) VALUES ($1) RETURNING created_at`, sess.ID).
		Scan(&sess.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `SELECT id, created_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	return sess, nil
}

func (s *PostgresStore) SessionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// --- Messages ---

// AppendMessage appends a single message to an existing session.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID, role, content string) (Message, error) {
	msgs, err := s.AppendMessages(ctx, sessionID, NewMessage{Role: role, Content: content})
	if err != nil {
		return Message{}, err
	}
	return msgs[0], nil
}

// AppendMessages appends msgs in order within one transaction. All messages
// share one timestamp and are ordered by ID. Returns ErrNotFound if the
// session does not exist.
func (s *PostgresStore) AppendMessages(ctx context.Context, sessionID string, msgs ...NewMessage) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if err := validateRoles(msgs); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	out := make([]Message, 0, len(msgs))
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1 FOR SHARE`, sessionID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking session: %w", err)
		}

		for _, m := range msgs {
			var id int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO messages (session_id, role, content, timestamp) VALUES ($1, $2, $3, $4) RETURNING id`,
				sessionID, m.Role, m.Content, now).Scan(&id); err != nil {
				return fmt.Errorf("inserting message: %w", err)
			}
			out = append(out, Message{ID: id, SessionID: sessionID, Role: m.Role, Content: m.Content, Timestamp: now})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns the messages of a session in chronological order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, timestamp
		FROM messages WHERE session_id = $1
		ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		results = append(results, m)
	}
	return results, rows.Err()
}
