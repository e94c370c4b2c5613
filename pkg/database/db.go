package database

import (
	"context"
	"database/sql"
	"time"

	"venue-rails/internal/constants"
	"venue-rails/pkg/config"

	_ "github.com/go-sql-driver/mysql"
)

// DB wraps the MySQL pool with the read/write timeouts every query in the
// service runs under. Repositories prepare their own hot statements on top.
type DB struct {
	conn         *sql.DB
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// pool carries the connection pool knobs. Zero values fall back inside
// open, so callers only set what they care about.
type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	readTO      time.Duration
	writeTO     time.Duration
}

func open(databaseURL string, p pool) (*DB, error) {
	conn, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(p.maxOpen)
	conn.SetMaxIdleConns(p.maxIdle)
	conn.SetConnMaxLifetime(p.maxLifetime)
	conn.SetConnMaxIdleTime(p.maxIdleTime)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	if p.readTO <= 0 {
		p.readTO = constants.DBReadTimeoutDefault
	}
	if p.writeTO <= 0 {
		p.writeTO = constants.DBWriteTimeoutDefault
	}
	return &DB{conn: conn, readTimeout: p.readTO, writeTimeout: p.writeTO}, nil
}

// New opens a pool with the default sizing. Tests use it; the service goes
// through NewWithConfig.
func New(databaseURL string) (*DB, error) {
	return open(databaseURL, pool{
		maxOpen:     50,
		maxIdle:     15,
		maxLifetime: 10 * time.Minute,
		maxIdleTime: 5 * time.Minute,
	})
}

// NewWithConfig opens a pool sized from config.
func NewWithConfig(databaseURL string, cfg *config.Config) (*DB, error) {
	return open(databaseURL, pool{
		maxOpen:     cfg.DBMaxOpenConns,
		maxIdle:     cfg.DBMaxIdleConns,
		maxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Minute,
		maxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Minute,
		readTO:      cfg.DBReadTimeout,
		writeTO:     cfg.DBWriteTimeout,
	})
}

// Conn exposes the underlying pool for transactions and statement prep.
func (db *DB) Conn() *sql.DB { return db.conn }

func (db *DB) Close() error { return db.conn.Close() }

// PingCtx verifies the connection, for health checks.
func (db *DB) PingCtx(ctx context.Context) error {
	ctx, cancel := db.ReadContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// ReadContext bounds ctx with the standard read timeout.
func (db *DB) ReadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

// WriteContext bounds ctx with the standard write timeout.
func (db *DB) WriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}
