package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Booking struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	Items     []string  `db:"-"`
	Phone     string    `db:"phone"`
	CreatedAt time.Time `db:"created_at"`
}

// Repository persists confirmed bookings.
type Repository interface {
	Save(ctx context.Context, b *Booking) error
	ListByUser(ctx context.Context, userID int64) ([]Booking, error)
}

func newBooking(userID int64, items []string, phone string) *Booking {
	return &Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     append([]string(nil), items...),
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	}
}

type MemoryRepository struct {
	mu       sync.RWMutex
	bookings []Booking
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = append(r.bookings, *b)
	return nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Booking
	for _, b := range r.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PostgresRepository stores bookings in the bookings table.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type bookingRow struct {
	Booking
	ItemsJSON []byte `db:"items"`
}

func (r *PostgresRepository) Save(ctx context.Context, b *Booking) error {
	items, err := json.Marshal(b.Items)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO bookings (id, user_id, items, phone, created_at) VALUES ($1, $2, $3::jsonb, $4, $5)`,
		b.ID, b.UserID, string(items), b.Phone, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]Booking, error) {
	var rows []bookingRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, items, phone, created_at FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}

	out := make([]Booking, 0, len(rows))
	for _, row := range rows {
		b := row.Booking
		if err := json.Unmarshal(row.ItemsJSON, &b.Items); err != nil {
			return nil, fmt.Errorf("decode booking items: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}
