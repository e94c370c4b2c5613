package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"venue-rails/internal/domain"
	"venue-rails/internal/models"
	"venue-rails/pkg/database"
	errs "venue-rails/pkg/errors"
)

// venueColumns is the canonical column list for venue selects. The scan
// order in scanVenue must match it exactly.
const venueColumns = `id, source, source_id, name, category, description, address,
	summary, tags, website, phone, opening_hours, lat, lng, place_id, map_url,
	formatted_address, price_level, rating, picture_url, photos,
	signals, quality, attempts, status, last_error, version,
	scraped_at, updated_at, published_at`

const (
	getVenueSQL = `SELECT ` + venueColumns + ` FROM venues WHERE id = ?`

	findBySourceSQL = `SELECT ` + venueColumns + ` FROM venues
		WHERE source = ? AND source_id = ?`

	batchByStatusSQL = `SELECT ` + venueColumns + ` FROM venues
		WHERE status = ? ORDER BY updated_at ASC LIMIT ?`

	insertVenueSQL = `INSERT INTO venues (
		source, source_id, name, category, description, address,
		summary, tags, website, phone, opening_hours, lat, lng, place_id,
		map_url, formatted_address, price_level, rating, picture_url, photos,
		signals, quality, attempts, status, last_error, version,
		scraped_at, updated_at, published_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// updateVenueSQL bumps the version in the same statement that checks
	// it; zero affected rows means the caller held a stale copy.
	updateVenueSQL = `UPDATE venues SET
		name = ?, category = ?, description = ?, address = ?,
		summary = ?, tags = ?, website = ?, phone = ?, opening_hours = ?,
		lat = ?, lng = ?, place_id = ?, map_url = ?, formatted_address = ?,
		price_level = ?, rating = ?, picture_url = ?, photos = ?,
		signals = ?, quality = ?, attempts = ?, status = ?, last_error = ?,
		updated_at = ?, published_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
)

// SQLRepository implements the domain repositories over MySQL. Hot read
// statements are prepared once at construction; writes share their SQL
// with the unit of work so both paths stay in sync.
type SQLRepository struct {
	db *database.DB

	getVenue       *sql.Stmt
	findBySource   *sql.Stmt
	batchByStatus  *sql.Stmt
	insertFeedback *sql.Stmt
}

// Ensure interface compliance at compile time
var _ domain.Repository = (*SQLRepository)(nil)

// NewSQLRepository prepares statements and ensures auxiliary tables.
// The venues table itself is owned by database.EnsureSchema.
func NewSQLRepository(db *database.DB) (*SQLRepository, error) {
	r := &SQLRepository{db: db}
	if err := r.ensureFeedbackTable(); err != nil {
		return nil, err
	}
	prep := []struct {
		dst  **sql.Stmt
		name string
		q    string
	}{
		{&r.getVenue, "get venue", getVenueSQL},
		{&r.findBySource, "find by source", findBySourceSQL},
		{&r.batchByStatus, "batch by status", batchByStatusSQL},
		{&r.insertFeedback, "insert feedback", insertFeedbackSQL},
	}
	for _, p := range prep {
		stmt, err := db.Conn().Prepare(p.q)
		if err != nil {
			r.Close()
			return nil, errs.NewDB("repository.NewSQLRepository", "prepare "+p.name+" statement", err)
		}
		*p.dst = stmt
	}
	return r, nil
}

// Close releases prepared statements. The pool itself belongs to the caller.
func (r *SQLRepository) Close() error {
	for _, stmt := range []*sql.Stmt{r.getVenue, r.findBySource, r.batchByStatus, r.insertFeedback} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

// GetVenueCtx loads one venue by id.
func (r *SQLRepository) GetVenueCtx(ctx context.Context, id int64) (*models.Venue, error) {
	ctx, cancel := r.db.ReadContext(ctx)
	defer cancel()

	v, err := scanVenue(r.getVenue.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("repository.GetVenueCtx", "venue", id)
	}
	if err != nil {
		return nil, errs.NewDB("repository.GetVenueCtx", "query venue by id", err)
	}
	return v, nil
}

// FindBySourceCtx loads a venue by its origin identity, for ingest dedup.
func (r *SQLRepository) FindBySourceCtx(ctx context.Context, source, sourceID string) (*models.Venue, error) {
	ctx, cancel := r.db.ReadContext(ctx)
	defer cancel()

	v, err := scanVenue(r.findBySource.QueryRowContext(ctx, source, sourceID))
	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("repository.FindBySourceCtx", "venue", source+"/"+sourceID)
	}
	if err != nil {
		return nil, errs.NewDB("repository.FindBySourceCtx", "query venue by source", err)
	}
	return v, nil
}

// BatchByStatusCtx returns up to limit venues awaiting the given step,
// oldest update first so stuck records surface before fresh ones.
func (r *SQLRepository) BatchByStatusCtx(ctx context.Context, status models.Status, limit int) ([]models.Venue, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.ReadContext(ctx)
	defer cancel()

	rows, err := r.batchByStatus.QueryContext(ctx, string(status), limit)
	if err != nil {
		return nil, errs.NewDB("repository.BatchByStatusCtx", "query venues by status", err)
	}
	defer rows.Close()

	var out []models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, errs.NewDB("repository.BatchByStatusCtx", "scan venue row", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("repository.BatchByStatusCtx", "row iteration error", err)
	}
	return out, nil
}

// StatusCountsCtx reports how many venues sit in each lifecycle state.
func (r *SQLRepository) StatusCountsCtx(ctx context.Context) (map[models.Status]int64, error) {
	ctx, cancel := r.db.ReadContext(ctx)
	defer cancel()

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT status, COUNT(*) FROM venues GROUP BY status`)
	if err != nil {
		return nil, errs.NewDB("repository.StatusCountsCtx", "query status counts", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, errs.NewDB("repository.StatusCountsCtx", "scan status count", err)
		}
		counts[models.Status(s)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("repository.StatusCountsCtx", "row iteration error", err)
	}
	return counts, nil
}

// CreateVenueCtx inserts a new venue and fills in its generated id.
func (r *SQLRepository) CreateVenueCtx(ctx context.Context, v *models.Venue) error {
	ctx, cancel := r.db.WriteContext(ctx)
	defer cancel()
	return insertVenueExec(ctx, r.db.Conn(), v)
}

// UpdateVenueCtx persists the venue patch under its version token.
func (r *SQLRepository) UpdateVenueCtx(ctx context.Context, v *models.Venue) error {
	ctx, cancel := r.db.WriteContext(ctx)
	defer cancel()
	return updateVenueExec(ctx, r.db.Conn(), v)
}

// execer abstracts *sql.DB and *sql.Tx so venue writes run identically
// inside and outside a unit of work.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertVenueExec(ctx context.Context, ex execer, v *models.Venue) error {
	const op = "repository.insertVenue"
	now := time.Now().UTC()
	if v.ScrapedAt.IsZero() {
		v.ScrapedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}
	if v.Status == "" {
		v.Status = models.StatusNew
	}
	if v.Version == 0 {
		v.Version = 1
	}

	docs, err := marshalVenueDocs(v)
	if err != nil {
		return errs.NewDB(op, "encode json documents", err)
	}

	res, err := ex.ExecContext(ctx, insertVenueSQL,
		v.Source, nullIfEmpty(v.SourceID), v.Raw.Name, v.Raw.Category,
		nullIfEmpty(v.Raw.Description), v.Raw.Address,
		v.Clean.Summary, models.TagsCSV(v.Clean.Tags), v.Clean.Website,
		v.Clean.Phone, v.Clean.OpeningHours, v.Geo.Lat, v.Geo.Lng,
		v.Geo.PlaceID, v.Geo.MapURL, v.Geo.FormattedAddress,
		v.Commerce.PriceLevel, v.Commerce.Rating, v.Media.PictureURL,
		docs.photos, docs.signals, docs.quality, docs.attempts,
		string(v.Status), v.LastError, v.Version,
		v.ScrapedAt, v.UpdatedAt, v.PublishedAt,
	)
	if err != nil {
		return errs.NewDB(op, "insert venue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.NewDB(op, "read generated id", err)
	}
	v.ID = id
	return nil
}

func updateVenueExec(ctx context.Context, ex execer, v *models.Venue) error {
	const op = "repository.updateVenue"
	v.UpdatedAt = time.Now().UTC()

	docs, err := marshalVenueDocs(v)
	if err != nil {
		return errs.NewDB(op, "encode json documents", err)
	}

	res, err := ex.ExecContext(ctx, updateVenueSQL,
		v.Raw.Name, v.Raw.Category, nullIfEmpty(v.Raw.Description), v.Raw.Address,
		v.Clean.Summary, models.TagsCSV(v.Clean.Tags), v.Clean.Website,
		v.Clean.Phone, v.Clean.OpeningHours, v.Geo.Lat, v.Geo.Lng,
		v.Geo.PlaceID, v.Geo.MapURL, v.Geo.FormattedAddress,
		v.Commerce.PriceLevel, v.Commerce.Rating, v.Media.PictureURL,
		docs.photos, docs.signals, docs.quality, docs.attempts,
		string(v.Status), v.LastError, v.UpdatedAt, v.PublishedAt,
		v.ID, v.Version,
	)
	if err != nil {
		return errs.NewDB(op, "update venue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.NewDB(op, "read affected rows", err)
	}
	if n == 0 {
		return errs.NewStaleWrite(op, v.ID)
	}
	v.Version++
	return nil
}

// venueDocs holds the JSON column payloads for one venue write.
type venueDocs struct {
	photos   any // nil or string
	signals  string
	quality  string
	attempts string
}

func marshalVenueDocs(v *models.Venue) (venueDocs, error) {
	var d venueDocs
	if len(v.Media.Photos) > 0 {
		b, err := json.Marshal(v.Media.Photos)
		if err != nil {
			return d, err
		}
		d.photos = string(b)
	}
	for _, doc := range []struct {
		dst *string
		src any
	}{
		{&d.signals, v.Signals},
		{&d.quality, v.Quality},
		{&d.attempts, v.Attempts},
	} {
		b, err := json.Marshal(doc.src)
		if err != nil {
			return d, err
		}
		*doc.dst = string(b)
	}
	return d, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVenue(sc scanner) (*models.Venue, error) {
	var (
		v          models.Venue
		sourceID   sql.NullString
		descr      sql.NullString
		tagsCSV    string
		website    sql.NullString
		phone      sql.NullString
		hours      sql.NullString
		lat, lng   sql.NullFloat64
		placeID    sql.NullString
		mapURL     sql.NullString
		fmtAddr    sql.NullString
		priceLevel sql.NullInt64
		rating     sql.NullFloat64
		picture    sql.NullString
		photos     sql.NullString
		signals    []byte
		quality    []byte
		attempts   []byte
		status     string
		published  sql.NullTime
	)

	err := sc.Scan(
		&v.ID, &v.Source, &sourceID, &v.Raw.Name, &v.Raw.Category, &descr,
		&v.Raw.Address, &v.Clean.Summary, &tagsCSV, &website, &phone, &hours,
		&lat, &lng, &placeID, &mapURL, &fmtAddr, &priceLevel, &rating,
		&picture, &photos, &signals, &quality, &attempts, &status,
		&v.LastError, &v.Version, &v.ScrapedAt, &v.UpdatedAt, &published,
	)
	if err != nil {
		return nil, err
	}

	v.SourceID = sourceID.String
	v.Raw.Description = descr.String
	v.Clean.Tags = models.SplitTags(tagsCSV)
	v.Clean.Website = strPtr(website)
	v.Clean.Phone = strPtr(phone)
	v.Clean.OpeningHours = strPtr(hours)
	v.Geo.Lat = floatPtr(lat)
	v.Geo.Lng = floatPtr(lng)
	v.Geo.PlaceID = strPtr(placeID)
	v.Geo.MapURL = strPtr(mapURL)
	v.Geo.FormattedAddress = strPtr(fmtAddr)
	v.Commerce.PriceLevel = intPtr(priceLevel)
	v.Commerce.Rating = floatPtr(rating)
	v.Media.PictureURL = strPtr(picture)
	v.Status = models.Status(status)
	if published.Valid {
		t := published.Time
		v.PublishedAt = &t
	}

	if photos.Valid && photos.String != "" {
		if err := json.Unmarshal([]byte(photos.String), &v.Media.Photos); err != nil {
			return nil, err
		}
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &v.Signals); err != nil {
			return nil, err
		}
	}
	if len(quality) > 0 {
		if err := json.Unmarshal(quality, &v.Quality); err != nil {
			return nil, err
		}
	}
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &v.Attempts); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}
