package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/pkg/database"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/geo"
)

// matchExpr is the FULLTEXT match over the derived view. It must name the
// columns of the ft_all index in schema order or MySQL refuses the query.
const matchExpr = `MATCH(name, category, tags, summary, description, address)`

// distExpr computes meters from the caller's point. POINT takes (x, y) =
// (lng, lat).
const distExpr = `ST_Distance_Sphere(POINT(lng, lat), POINT(?, ?))`

// SearchViewCtx runs one ranked query against the live search view.
// Never touches the base table: the view is the only surface ranked reads
// see, so a refresh swap changes results atomically.
func (r *SQLRepository) SearchViewCtx(ctx context.Context, p domain.SearchParams) ([]models.SearchRow, int, error) {
	const op = "repository.SearchViewCtx"

	if p.Sort == "" {
		p.Sort = domain.SortRelevance
	}
	if !p.Sort.Valid() {
		return nil, 0, errs.NewValidationCode(op, errs.CodeInvalidSort,
			fmt.Sprintf("unsupported sort %q", p.Sort))
	}
	if p.Sort == domain.SortDistance && !p.HasPoint() {
		return nil, 0, errs.NewValidationCode(op, errs.CodeInvalidSort,
			"distance sort requires user coordinates")
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := buildSearchQuery(p)

	ctx, cancel := r.db.ReadContext(ctx)
	defer cancel()

	var total int
	if err := r.db.Conn().QueryRowContext(ctx, q.countSQL(), q.whereArgs...).Scan(&total); err != nil {
		return nil, 0, errs.NewDB(op, "count view matches", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := r.db.Conn().QueryContext(ctx, q.selectSQL(), q.selectArgs()...)
	if err != nil {
		return nil, 0, errs.NewDB(op, "query search view", err)
	}
	defer rows.Close()

	out := make([]models.SearchRow, 0, p.Limit)
	for rows.Next() {
		row, err := scanSearchRow(rows)
		if err != nil {
			return nil, 0, errs.NewDB(op, "scan view row", err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errs.NewDB(op, "row iteration error", err)
	}
	return out, total, nil
}

// searchQuery holds the assembled pieces of one view query. Count and
// select share the WHERE clause and its args so totals always agree with
// the page contents.
type searchQuery struct {
	relevance string // select expression
	distance  string // select expression
	exprArgs  []any  // args consumed by the two expressions above
	where     []string
	whereArgs []any
	orderBy   string
	limit     int
	offset    int
}

func buildSearchQuery(p domain.SearchParams) *searchQuery {
	q := &searchQuery{relevance: "0", distance: "NULL", limit: p.Limit, offset: p.Offset}

	if p.Query != "" {
		q.relevance = matchExpr + " AGAINST (? IN BOOLEAN MODE)"
		q.exprArgs = append(q.exprArgs, p.Query)
		q.where = append(q.where, matchExpr+" AGAINST (? IN BOOLEAN MODE)")
		q.whereArgs = append(q.whereArgs, p.Query)
	}

	if p.HasPoint() {
		q.distance = distExpr
		q.exprArgs = append(q.exprArgs, *p.Lng, *p.Lat)
	}

	if len(p.Tags) > 0 {
		ors := make([]string, len(p.Tags))
		for i, tag := range p.Tags {
			ors[i] = "FIND_IN_SET(?, tags) > 0"
			q.whereArgs = append(q.whereArgs, tag)
		}
		q.where = append(q.where, "("+strings.Join(ors, " OR ")+")")
	}

	if p.Viewport != nil {
		q.addViewport(*p.Viewport)
	}

	geoBound := p.RadiusM > 0 && p.HasPoint()
	if geoBound || p.Sort == domain.SortDistance {
		// Rows without coordinates cannot satisfy a geo constraint.
		q.where = append(q.where, "lat IS NOT NULL AND lng IS NOT NULL")
	}
	if geoBound {
		// Bounding box first so idx_geo prunes, then the exact circle.
		q.addViewport(geo.BoundingBox(*p.Lat, *p.Lng, p.RadiusM))
		q.where = append(q.where, distExpr+" <= ?")
		q.whereArgs = append(q.whereArgs, *p.Lng, *p.Lat, p.RadiusM)
	}

	switch {
	case p.Sort == domain.SortDistance:
		q.orderBy = "distance_m ASC, id ASC"
	case p.Query != "":
		q.orderBy = "relevance DESC, rating DESC, id ASC"
	default:
		// Editorial browse: best of the curation surface first.
		q.orderBy = "CAST(signals->>'$.quality_score' AS DOUBLE) DESC, rating DESC, id ASC"
	}
	return q
}

func (q *searchQuery) addViewport(v geo.Viewport) {
	q.where = append(q.where, "lat BETWEEN ? AND ?", "lng BETWEEN ? AND ?")
	q.whereArgs = append(q.whereArgs, v.MinLat, v.MaxLat, v.MinLng, v.MaxLng)
}

func (q *searchQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *searchQuery) countSQL() string {
	return "SELECT COUNT(*) FROM " + database.LiveSearchTable + q.whereSQL()
}

func (q *searchQuery) selectSQL() string {
	return fmt.Sprintf(
		`SELECT id, name, category, tags, summary, description, address,
			lat, lng, price_level, rating, picture_url, signals, status, published_at,
			%s AS relevance, %s AS distance_m
		FROM %s%s ORDER BY %s LIMIT ? OFFSET ?`,
		q.relevance, q.distance, database.LiveSearchTable, q.whereSQL(), q.orderBy)
}

func (q *searchQuery) selectArgs() []any {
	args := make([]any, 0, len(q.exprArgs)+len(q.whereArgs)+2)
	args = append(args, q.exprArgs...)
	args = append(args, q.whereArgs...)
	return append(args, q.limit, q.offset)
}

func scanSearchRow(sc scanner) (*models.SearchRow, error) {
	var (
		row        models.SearchRow
		tagsCSV    string
		descr      sql.NullString
		lat, lng   sql.NullFloat64
		priceLevel sql.NullInt64
		rating     sql.NullFloat64
		picture    sql.NullString
		signals    []byte
		status     string
		published  sql.NullTime
		relevance  float64
		distance   sql.NullFloat64
	)

	err := sc.Scan(
		&row.VenueID, &row.Name, &row.Category, &tagsCSV, &row.Summary,
		&descr, &row.Address, &lat, &lng, &priceLevel, &rating, &picture,
		&signals, &status, &published, &relevance, &distance,
	)
	if err != nil {
		return nil, err
	}

	row.Tags = models.SplitTags(tagsCSV)
	row.Description = descr.String
	row.Lat = floatPtr(lat)
	row.Lng = floatPtr(lng)
	row.PriceLevel = intPtr(priceLevel)
	row.Rating = floatPtr(rating)
	row.PictureURL = strPtr(picture)
	row.Status = models.Status(status)
	row.Relevance = relevance
	row.DistanceM = floatPtr(distance)
	if published.Valid {
		t := published.Time
		row.PublishedAt = &t
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &row.Signals); err != nil {
			return nil, err
		}
	}
	return &row, nil
}
