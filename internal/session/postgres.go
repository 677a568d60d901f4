package session

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	apperrors "github.com/Proton-105/chatflow/internal/errors"
	"github.com/jmoiron/sqlx"
)

const (
	selectSessionQuery = `SELECT data, updated_at FROM chat_sessions WHERE key = $1`
	upsertSessionQuery = `
INSERT INTO chat_sessions (key, data, updated_at)
VALUES ($1, $2::jsonb, $3)
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	deleteSessionQuery = `DELETE FROM chat_sessions WHERE key = $1`
	pruneSessionsQuery = `DELETE FROM chat_sessions WHERE updated_at < $1`
	scanSessionsQuery  = `SELECT key, data, updated_at FROM chat_sessions ORDER BY key`
)

type sessionRow struct {
	Key       string    `db:"key"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PostgresStore keeps sessions in the chat_sessions table.
type PostgresStore struct {
	db  *sqlx.DB
	log *slog.Logger
	now func() time.Time
}

func NewPostgresStore(db *sqlx.DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}

	return &PostgresStore{db: db, log: log, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Session, error) {
	var row sessionRow
	err := apperrors.WithRetry(ctx, func() error {
		err := s.db.GetContext(ctx, &row, selectSessionQuery, key)
		if err != nil && !stderrors.Is(err, sql.ErrNoRows) {
			return apperrors.NewStoreError("postgres get", err)
		}
		return err
	})
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}

		s.log.ErrorContext(ctx, "failed to load session", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	sess := New()
	if err := json.Unmarshal(row.Data, &sess); err != nil {
		return nil, apperrors.NewStoreError("postgres decode", err)
	}
	return sess, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return apperrors.NewStoreError("postgres encode", err)
	}

	if _, err := s.db.ExecContext(ctx, upsertSessionQuery, key, string(data), s.now().UTC()); err != nil {
		s.log.ErrorContext(ctx, "failed to save session", slog.String("key", key), slog.Any("error", err))
		return apperrors.NewStoreError("postgres set", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteSessionQuery, key); err != nil {
		return apperrors.NewStoreError("postgres delete", err)
	}
	return nil
}

func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, pruneSessionsQuery, olderThan.UTC())
	if err != nil {
		return 0, apperrors.NewStoreError("postgres prune", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreError("postgres prune", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Scan(ctx context.Context, fn func(key string, sess Session) bool) error {
	rows, err := s.db.QueryxContext(ctx, scanSessionsQuery)
	if err != nil {
		return apperrors.NewStoreError("postgres scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row sessionRow
		if err := rows.StructScan(&row); err != nil {
			return apperrors.NewStoreError("postgres scan", err)
		}

		sess := New()
		if err := json.Unmarshal(row.Data, &sess); err != nil {
			s.log.WarnContext(ctx, "skipping undecodable session", slog.String("key", row.Key), slog.Any("error", err))
			continue
		}

		if !fn(row.Key, sess) {
			return nil
		}
	}

	return rows.Err()
}
