// Package database keeps a cache of the last resolved server directory.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/schema"

	"speedtester/pkg/models"
)

type DB struct {
	*bun.DB
}

// Options contains the PostgreSQL connection settings
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (o Options) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		o.User,
		o.Password,
		o.Host,
		o.Port,
		o.DBName,
		o.SSLMode,
	)
}

// NewDB connects to PostgreSQL and verifies the connection.
func NewDB(opts Options) (*DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(opts.dsn())))

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// Open wraps an already opened database handle.
func Open(sqldb *sql.DB, dialect schema.Dialect) *DB {
	return &DB{bun.NewDB(sqldb, dialect)}
}

// InitSchema creates the necessary tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*models.Server)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// UpsertServers stores servers keyed by id, refreshing rows that already exist.
func (db *DB) UpsertServers(ctx context.Context, servers []models.Server) error {
	if len(servers) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]models.Server, len(servers))
	for i, s := range servers {
		s.UpdatedAt = now
		rows[i] = s
	}

	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("url = EXCLUDED.url").
		Set("lat = EXCLUDED.lat").
		Set("lon = EXCLUDED.lon").
		Set("name = EXCLUDED.name").
		Set("country = EXCLUDED.country").
		Set("country_code = EXCLUDED.country_code").
		Set("sponsor = EXCLUDED.sponsor").
		Set("host = EXCLUDED.host").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error upserting servers: %w", err)
	}

	return nil
}

// GetCachedServers returns every cached server ordered by id. Distance and latency
// are not stored; latency comes back unset.
func (db *DB) GetCachedServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	err := db.NewSelect().
		Model(&servers).
		Order("s.id").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting cached servers: %w", err)
	}

	for i := range servers {
		servers[i].Latency = models.LatencyUnset
	}
	return servers, nil
}
