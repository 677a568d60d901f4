package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migrator applies the embedded migrations. Each run uses its own connection,
// closed when the run ends.
type Migrator struct {
	dsn string
	log *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(dsn string, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{dsn: dsn, log: log.With(slog.String("component", "migrator"))}
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down rolls back the given number of migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return errors.New("migrator: steps must be positive")
	}
	return m.run(ctx, "down", func(mg *migrate.Migrate) error { return mg.Steps(-steps) })
}

func (m *Migrator) run(ctx context.Context, direction string, apply func(*migrate.Migrate) error) error {
	db, err := sql.Open("postgres", m.dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database not ready: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("init migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("init migration source: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := mg.Close(); srcErr != nil || dbErr != nil {
			m.log.Warn("failed to close migrator", slog.Any("source_error", srcErr), slog.Any("db_error", dbErr))
		}
	}()

	fromVer, _, _ := mg.Version()

	start := time.Now()
	applyErr := apply(mg)
	took := time.Since(start)

	switch {
	case applyErr == nil:
	case errors.Is(applyErr, migrate.ErrNoChange):
		m.log.Info("migrations up to date", slog.Uint64("version", uint64(fromVer)))
		return nil
	default:
		m.log.Error("migration failed",
			slog.String("direction", direction),
			slog.Duration("duration", took),
			slog.Any("error", applyErr),
		)
		return fmt.Errorf("migration %s failed: %w", direction, applyErr)
	}

	toVer, _, _ := mg.Version()
	m.log.Info("migrations summary",
		slog.String("direction", direction),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Duration("duration", took),
	)

	return nil
}

// ListMigrations returns all .up.sql files under root in lexical order.
func ListMigrations(dir fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(dir, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// Embedded returns the migrations compiled into the binary.
func Embedded() ([]string, error) {
	return ListMigrations(migrationsFS, migrationsDir)
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}
