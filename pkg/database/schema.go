package database

import (
	"context"
	"fmt"

	errs "venue-rails/pkg/errors"
)

// Search view generation names. The live generation is always reachable as
// LiveSearchTable; exactly one of the A/B names holds the offline copy.
const (
	LiveSearchTable   = "venues_search"
	searchGenerationA = "venues_search_a"
	searchGenerationB = "venues_search_b"
)

const venuesDDL = `CREATE TABLE IF NOT EXISTS venues (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	source VARCHAR(64) NOT NULL DEFAULT '',
	source_id VARCHAR(128) NULL,
	name VARCHAR(255) NOT NULL,
	category VARCHAR(128) NOT NULL DEFAULT '',
	description TEXT NULL,
	address VARCHAR(512) NOT NULL DEFAULT '',
	summary VARCHAR(512) NOT NULL DEFAULT '',
	tags VARCHAR(1024) NOT NULL DEFAULT '',
	website VARCHAR(512) NULL,
	phone VARCHAR(32) NULL,
	opening_hours JSON NULL,
	lat DOUBLE NULL,
	lng DOUBLE NULL,
	place_id VARCHAR(128) NULL,
	map_url VARCHAR(512) NULL,
	formatted_address VARCHAR(512) NULL,
	price_level TINYINT NULL,
	rating DOUBLE NULL,
	picture_url VARCHAR(512) NULL,
	photos JSON NULL,
	signals JSON NOT NULL,
	quality JSON NOT NULL,
	attempts JSON NOT NULL,
	status VARCHAR(32) NOT NULL DEFAULT 'NEW',
	last_error VARCHAR(512) NOT NULL DEFAULT '',
	version BIGINT NOT NULL DEFAULT 1,
	scraped_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	published_at DATETIME(6) NULL,
	UNIQUE KEY uq_source (source, source_id),
	KEY idx_status (status),
	KEY idx_updated (updated_at)
) ENGINE=InnoDB`

// searchViewDDL is instantiated per generation. Note the FULLTEXT index:
// ranked reads always go through MATCH ... AGAINST on the live generation.
const searchViewDDL = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	category VARCHAR(128) NOT NULL DEFAULT '',
	tags VARCHAR(1024) NOT NULL DEFAULT '',
	summary VARCHAR(512) NOT NULL DEFAULT '',
	description TEXT NULL,
	address VARCHAR(512) NOT NULL DEFAULT '',
	lat DOUBLE NULL,
	lng DOUBLE NULL,
	price_level TINYINT NULL,
	rating DOUBLE NULL,
	picture_url VARCHAR(512) NULL,
	signals JSON NOT NULL,
	status VARCHAR(32) NOT NULL,
	published_at DATETIME(6) NULL,
	KEY idx_geo (lat, lng),
	FULLTEXT KEY ft_all (name, category, tags, summary, description, address)
) ENGINE=InnoDB`

const heartbeatDDL = `CREATE TABLE IF NOT EXISTS search_heartbeat (
	view_name VARCHAR(64) NOT NULL PRIMARY KEY,
	refreshed_at DATETIME(6) NOT NULL,
	row_count BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL
) ENGINE=InnoDB`

// EnsureSchema creates the base tables and the two search view generations,
// then promotes one generation to the live name if no live view exists yet.
// Runs under the caller's deadline; startup DDL can outlast a write timeout.
func (db *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		venuesDDL,
		heartbeatDDL,
	}
	for _, q := range stmts {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return errs.NewDB("database.EnsureSchema", "create base tables", err)
		}
	}

	live, err := db.tableExists(ctx, LiveSearchTable)
	if err != nil {
		return err
	}
	if live {
		// Steady state: make sure the offline sibling exists too.
		offline, err := db.OfflineSearchTable(ctx)
		if err == nil && offline != "" {
			return nil
		}
		if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(searchViewDDL, searchGenerationA)); err != nil {
			return errs.NewDB("database.EnsureSchema", "create offline search generation", err)
		}
		return nil
	}

	// Bootstrap: create both generations and promote A to the live name.
	for _, name := range []string{searchGenerationA, searchGenerationB} {
		if _, err := db.conn.ExecContext(ctx, fmt.Sprintf(searchViewDDL, name)); err != nil {
			return errs.NewDB("database.EnsureSchema", "create search generation "+name, err)
		}
	}
	promote := fmt.Sprintf("RENAME TABLE %s TO %s", searchGenerationA, LiveSearchTable)
	if _, err := db.conn.ExecContext(ctx, promote); err != nil {
		return errs.NewDB("database.EnsureSchema", "promote initial search generation", err)
	}
	return nil
}

// OfflineSearchTable returns the generation currently holding the offline
// copy: whichever of the A/B names is present on disk.
func (db *DB) OfflineSearchTable(ctx context.Context) (string, error) {
	for _, name := range []string{searchGenerationA, searchGenerationB} {
		ok, err := db.tableExists(ctx, name)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
	return "", errs.NewDB("database.OfflineSearchTable", "no offline search generation found", nil)
}

// SwapSearchTables atomically promotes the rebuilt offline generation.
// Readers of the live name observe the old or the new table, never a torn
// state: RENAME TABLE applies all renames as one operation.
func (db *DB) SwapSearchTables(ctx context.Context, offline string) error {
	free := searchGenerationA
	if offline == searchGenerationA {
		free = searchGenerationB
	}
	q := fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s",
		LiveSearchTable, free, offline, LiveSearchTable)

	ctx, cancel := db.WriteContext(ctx)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, q); err != nil {
		return errs.NewDB("database.SwapSearchTables", "rename search generations", err)
	}
	return nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	const q = `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`
	var n int
	if err := db.conn.QueryRowContext(ctx, q, name).Scan(&n); err != nil {
		return false, errs.NewDB("database.tableExists", "query information_schema", err)
	}
	return n > 0, nil
}
