package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRegistry implements Registry using SQLite.
type SQLiteRegistry struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Config holds SQLite registry configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteRegistry creates a registry, opens the database and applies
// migrations.
func NewSQLiteRegistry(ctx context.Context, cfg Config) (*SQLiteRegistry, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	r := &SQLiteRegistry{path: cfg.Path, now: time.Now}
	if err := r.init(ctx, cfg); err != nil {
		return nil, err
	}

	if err := r.migrate(); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

func (r *SQLiteRegistry) init(ctx context.Context, cfg Config) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", r.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	r.db = db
	return nil
}

func (r *SQLiteRegistry) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(r.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (r *SQLiteRegistry) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return r.db.PingContext(ctx)
}

// AddHost inserts or updates a host record keyed by address.
func (r *SQLiteRegistry) AddHost(ctx context.Context, host *Host) error {
	if host.Address == "" {
		return fmt.Errorf("host address is required")
	}
	if host.RootPath == "" {
		return fmt.Errorf("root path is required for host %s", host.Address)
	}

	labels, err := json.Marshal(host.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	if host.Labels == nil {
		labels = []byte("{}")
	}

	now := r.now().UTC()
	query := `
		INSERT INTO hosts (id, address, root_path, labels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			root_path = excluded.root_path,
			labels = excluded.labels,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		uuid.NewString(), host.Address, host.RootPath, string(labels),
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to add host %s: %w", host.Address, err)
	}

	stored, err := r.GetHost(ctx, host.Address)
	if err != nil {
		return err
	}
	*host = *stored
	return nil
}

// GetHost returns the host registered under address.
func (r *SQLiteRegistry) GetHost(ctx context.Context, address string) (*Host, error) {
	query := `
		SELECT id, address, root_path, labels, created_at, updated_at
		FROM hosts WHERE address = ?
	`
	host, err := scanHost(r.db.QueryRowContext(ctx, query, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host %s: %w", address, err)
	}
	return host, nil
}

// RootPath returns the deployment root path registered for address.
func (r *SQLiteRegistry) RootPath(ctx context.Context, address string) (string, error) {
	host, err := r.GetHost(ctx, address)
	if err != nil {
		return "", err
	}
	return host.RootPath, nil
}

// ListHosts returns every registered host ordered by registration time.
func (r *SQLiteRegistry) ListHosts(ctx context.Context) ([]*Host, error) {
	query := `
		SELECT id, address, root_path, labels, created_at, updated_at
		FROM hosts ORDER BY created_at, address
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hosts []*Host
	for rows.Next() {
		host, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// RemoveHost deletes the host registered under address.
func (r *SQLiteRegistry) RemoveHost(ctx context.Context, address string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM hosts WHERE address = ?`, address)
	if err != nil {
		return fmt.Errorf("failed to remove host %s: %w", address, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove host %s: %w", address, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrHostNotFound, address)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHost(row rowScanner) (*Host, error) {
	var (
		host             Host
		labels           string
		created, updated int64
	)
	if err := row.Scan(&host.ID, &host.Address, &host.RootPath, &labels, &created, &updated); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(labels), &host.Labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	if len(host.Labels) == 0 {
		host.Labels = nil
	}
	host.CreatedAt = time.Unix(0, created).UTC()
	host.UpdatedAt = time.Unix(0, updated).UTC()

	return &host, nil
}
