package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"venue-rails/pkg/database"
	errs "venue-rails/pkg/errors"
)

// SQLEventStore stores events in MySQL with ordered ids.
type SQLEventStore struct {
	db *database.DB
}

func NewSQLEventStore(db *database.DB) (*SQLEventStore, error) {
	s := &SQLEventStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, errs.NewDB("events.NewSQLEventStore", "ensure venue_events table", err)
	}
	return s, nil
}

func (s *SQLEventStore) ensureTable() error {
	qry := `CREATE TABLE IF NOT EXISTS venue_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		venue_id BIGINT NOT NULL,
		type VARCHAR(64) NOT NULL,
		agent VARCHAR(32) NOT NULL,
		level VARCHAR(16) NOT NULL,
		code VARCHAR(64) NOT NULL DEFAULT '',
		note VARCHAR(512) NOT NULL DEFAULT '',
		at DATETIME(6) NOT NULL,
		data JSON NULL,
		KEY idx_venue_id (venue_id),
		KEY idx_venue_time (venue_id, id)
	) ENGINE=InnoDB`
	_, err := s.db.Conn().Exec(qry)
	return err
}

var _ Store = (*SQLEventStore)(nil)

// Append writes all events in one transaction so a step's log entries land
// together or not at all.
func (s *SQLEventStore) Append(ctx context.Context, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	tx, err := s.db.Conn().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := appendTx(ctx, tx, ev...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AppendTx writes events inside a caller-owned transaction. The pipeline
// uses this so the venue patch and its log entries commit atomically.
func (s *SQLEventStore) AppendTx(ctx context.Context, tx *sql.Tx, ev ...Event) error {
	return appendTx(ctx, tx, ev...)
}

// AppendWithTx is AppendTx without a store instance, for unit-of-work code
// that already holds the transaction.
func AppendWithTx(ctx context.Context, tx *sql.Tx, ev ...Event) error {
	return appendTx(ctx, tx, ev...)
}

func appendTx(ctx context.Context, tx *sql.Tx, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO venue_events (venue_id, type, agent, level, code, note, at, data) VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range ev {
		var data any
		if len(e.Data) > 0 {
			b, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			data = string(b)
		}

		at := e.At
		if at.IsZero() {
			at = time.Now().UTC()
		}

		if _, err := stmt.ExecContext(ctx,
			e.VenueID, e.Type, e.Agent, string(e.Level), string(e.Code), e.Note, at, data); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

func (s *SQLEventStore) ListByVenue(ctx context.Context, venueID int64) ([]StoredEvent, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, venue_id, type, agent, level, code, note, at, data
		 FROM venue_events WHERE venue_id = ? ORDER BY id ASC`, venueID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var code, level string
		var data sql.NullString
		if err := rows.Scan(&se.Seq, &se.VenueID, &se.Type, &se.Agent, &level, &code, &se.Note, &se.At, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		se.Level = Level(level)
		se.Code = errs.Code(code)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &se.Data); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}

func (s *SQLEventStore) Replay(ctx context.Context, venueID int64) (*VenueTimeline, error) {
	events, err := s.ListByVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	return RebuildState(events), nil
}
