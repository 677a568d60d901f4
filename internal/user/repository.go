package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Repository defines persistence operations for profiles.
type Repository interface {
	Find(ctx context.Context, userID int64) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) error
	SetLanguage(ctx context.Context, userID int64, lang string) error
}

// MemoryRepository keeps profiles in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[int64]*Profile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: make(map[int64]*Profile)}
}

func (r *MemoryRepository) Find(_ context.Context, userID int64) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.clone(), nil
}

func (r *MemoryRepository) Upsert(_ context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := p.clone()
	if existing, ok := r.profiles[p.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
		if cp.Language == "" {
			cp.Language = existing.Language
		}
	}
	r.profiles[p.UserID] = cp
	return nil
}

func (r *MemoryRepository) SetLanguage(_ context.Context, userID int64, lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.Language = lang
	return nil
}

// PostgresRepository stores profiles in the users table.
type PostgresRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

func NewPostgresRepository(db *sqlx.DB, log *slog.Logger) *PostgresRepository {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresRepository{db: db, log: log}
}

func (r *PostgresRepository) Find(ctx context.Context, userID int64) (*Profile, error) {
	const query = `
		SELECT user_id, username, first_name, last_name, language, created_at, last_seen_at
		FROM users
		WHERE user_id = $1
	`

	var p Profile
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Error("failed to fetch user profile", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("select user profile: %w", err)
	}

	return &p, nil
}

// Upsert inserts the profile or refreshes its identity fields. An empty
// language never overwrites a stored one.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Profile) error {
	const query = `
		INSERT INTO users (user_id, username, first_name, last_name, language, created_at, last_seen_at)
		VALUES (:user_id, :username, :first_name, :last_name, :language, :created_at, :last_seen_at)
		ON CONFLICT (user_id) DO UPDATE SET
			username     = EXCLUDED.username,
			first_name   = EXCLUDED.first_name,
			last_name    = EXCLUDED.last_name,
			language     = COALESCE(NULLIF(EXCLUDED.language, ''), users.language),
			last_seen_at = EXCLUDED.last_seen_at
	`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		r.log.Error("failed to upsert user profile", slog.Int64("user_id", p.UserID), slog.Any("error", err))
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetLanguage(ctx context.Context, userID int64, lang string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET language = $2 WHERE user_id = $1`, userID, lang)
	if err != nil {
		return fmt.Errorf("update user language: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
