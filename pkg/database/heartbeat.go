package database

import (
	"context"
	"database/sql"
	"time"

	errs "venue-rails/pkg/errors"
)

// Heartbeat records one completed refresh of a search view generation.
// The health manager reads it to judge view freshness.
type Heartbeat struct {
	ViewName    string    `json:"view_name"`
	RefreshedAt time.Time `json:"refreshed_at"`
	RowCount    int64     `json:"row_count"`
	DurationMS  int64     `json:"duration_ms"`
}

// UpsertHeartbeatCtx writes the refresh marker for a view.
func (db *DB) UpsertHeartbeatCtx(ctx context.Context, hb *Heartbeat) error {
	ctx, cancel := db.WriteContext(ctx)
	defer cancel()

	query := `INSERT INTO search_heartbeat (view_name, refreshed_at, row_count, duration_ms)
	          VALUES (?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE
	            refreshed_at = VALUES(refreshed_at),
	            row_count = VALUES(row_count),
	            duration_ms = VALUES(duration_ms)`

	if _, err := db.conn.ExecContext(ctx, query,
		hb.ViewName, hb.RefreshedAt, hb.RowCount, hb.DurationMS); err != nil {
		return errs.NewDB("database.UpsertHeartbeatCtx", "upsert heartbeat", err)
	}
	return nil
}

// GetHeartbeatCtx returns the refresh marker for a view, nil when the view
// has never been refreshed.
func (db *DB) GetHeartbeatCtx(ctx context.Context, viewName string) (*Heartbeat, error) {
	ctx, cancel := db.ReadContext(ctx)
	defer cancel()

	query := `SELECT view_name, refreshed_at, row_count, duration_ms
	          FROM search_heartbeat WHERE view_name = ?`

	var hb Heartbeat
	err := db.conn.QueryRowContext(ctx, query, viewName).Scan(
		&hb.ViewName, &hb.RefreshedAt, &hb.RowCount, &hb.DurationMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetHeartbeatCtx", "query heartbeat", err)
	}
	return &hb, nil
}

// ListHeartbeatsCtx returns all refresh markers, newest first.
func (db *DB) ListHeartbeatsCtx(ctx context.Context) ([]Heartbeat, error) {
	ctx, cancel := db.ReadContext(ctx)
	defer cancel()

	query := `SELECT view_name, refreshed_at, row_count, duration_ms
	          FROM search_heartbeat ORDER BY refreshed_at DESC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.NewDB("database.ListHeartbeatsCtx", "query heartbeats", err)
	}
	defer rows.Close()

	var out []Heartbeat
	for rows.Next() {
		var hb Heartbeat
		if err := rows.Scan(&hb.ViewName, &hb.RefreshedAt, &hb.RowCount, &hb.DurationMS); err != nil {
			return nil, errs.NewDB("database.ListHeartbeatsCtx", "scan heartbeat", err)
		}
		out = append(out, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.ListHeartbeatsCtx", "row iteration error", err)
	}
	return out, nil
}
