package repository

import (
	"context"
	"time"

	"venue-rails/internal/models"
	errs "venue-rails/pkg/errors"
)

// feedbackDDL lives here rather than in pkg/database: the feedback table is
// an implementation detail of this repository, not part of the core schema.
const feedbackDDL = `CREATE TABLE IF NOT EXISTS session_feedback (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	session_id VARCHAR(64) NOT NULL,
	place_id BIGINT NOT NULL,
	action VARCHAR(16) NOT NULL,
	dwell_ms BIGINT NULL,
	step INT NULL,
	at DATETIME(6) NOT NULL,
	KEY idx_session (session_id),
	KEY idx_place (place_id)
) ENGINE=InnoDB`

const insertFeedbackSQL = `INSERT INTO session_feedback
	(session_id, place_id, action, dwell_ms, step, at)
	VALUES (?, ?, ?, ?, ?, ?)`

func (r *SQLRepository) ensureFeedbackTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := r.db.Conn().ExecContext(ctx, feedbackDDL); err != nil {
		return errs.NewDB("repository.ensureFeedbackTable", "create session_feedback table", err)
	}
	return nil
}

// CreateFeedbackCtx records one session interaction for later signal mining.
func (r *SQLRepository) CreateFeedbackCtx(ctx context.Context, f *models.FeedbackSignal) error {
	const op = "repository.CreateFeedbackCtx"
	if err := f.Validate(); err != nil {
		return errs.NewValidation(op, "invalid feedback signal", err)
	}
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}

	ctx, cancel := r.db.WriteContext(ctx)
	defer cancel()

	_, err := r.insertFeedback.ExecContext(ctx,
		f.SessionID, f.PlaceID, string(f.Action), f.DwellMs, f.Step, f.At)
	if err != nil {
		return errs.NewDB(op, "insert feedback", err)
	}
	return nil
}

// FeedbackCountsCtx aggregates recorded actions for one venue.
func (r *SQLRepository) FeedbackCountsCtx(ctx context.Context, venueID int64) (map[models.FeedbackAction]int64, error) {
	const op = "repository.FeedbackCountsCtx"

	ctx, cancel := r.db.ReadContext(ctx)
	defer cancel()

	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT action, COUNT(*) FROM session_feedback WHERE place_id = ? GROUP BY action`, venueID)
	if err != nil {
		return nil, errs.NewDB(op, "query feedback counts", err)
	}
	defer rows.Close()

	counts := make(map[models.FeedbackAction]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, errs.NewDB(op, "scan feedback count", err)
		}
		counts[models.FeedbackAction(action)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB(op, "row iteration error", err)
	}
	return counts, nil
}
