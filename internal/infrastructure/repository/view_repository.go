package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	errs "venue-rails/pkg/errors"
)

// viewProjection copies the searchable slice of the base table into a view
// generation. Signals travel verbatim; the view adds nothing of its own.
const viewProjection = `INSERT INTO %s
	(id, name, category, tags, summary, description, address,
	 lat, lng, price_level, rating, picture_url, signals, status, published_at)
	SELECT id, name, category, tags, summary, description, address,
	 lat, lng, price_level, rating, picture_url, signals, status, published_at
	FROM venues WHERE status IN (%s)`

// RebuildOfflineCtx repopulates the offline view generation from the base
// table. The live view is untouched until PromoteCtx swaps the names, so a
// failed rebuild leaves readers on the previous generation.
func (r *SQLRepository) RebuildOfflineCtx(ctx context.Context) (*domain.RefreshResult, error) {
	const op = "repository.RebuildOfflineCtx"
	start := time.Now()

	offline, err := r.db.OfflineSearchTable(ctx)
	if err != nil {
		return nil, err
	}

	conn := r.db.Conn()
	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE "+offline); err != nil {
		return nil, errs.NewDB(op, "truncate offline generation", err)
	}

	statuses := make([]string, len(models.SearchableStatuses))
	args := make([]any, len(models.SearchableStatuses))
	for i, s := range models.SearchableStatuses {
		statuses[i] = "?"
		args[i] = string(s)
	}
	q := fmt.Sprintf(viewProjection, offline, strings.Join(statuses, ", "))

	res, err := conn.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, errs.NewDB(op, "project venues into offline generation", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, errs.NewDB(op, "read projected row count", err)
	}

	return &domain.RefreshResult{
		Table:    offline,
		Rows:     rows,
		Duration: time.Since(start).Milliseconds(),
	}, nil
}

// PromoteCtx swaps the rebuilt generation into the live position.
func (r *SQLRepository) PromoteCtx(ctx context.Context, offlineTable string) error {
	return r.db.SwapSearchTables(ctx, offlineTable)
}
