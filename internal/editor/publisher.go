package editor

import (
	"context"
	"time"

	"venue-rails/internal/models"
	"venue-rails/pkg/errors"
)

// PublishResult reports the final gate. Warnings never block.
type PublishResult struct {
	Issues   []FieldIssue `json:"issues,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// OK reports whether the record went out.
func (r PublishResult) OK() bool { return len(r.Issues) == 0 }

// Publish runs the final invariant check and stamps the record. The caller
// persists the mutation and appends the lifecycle event; on issues the
// record is left untouched.
func Publish(ctx context.Context, v *models.Venue, now time.Time) (PublishResult, error) {
	const op = "editor.Publish"
	var res PublishResult

	if ctx.Err() != nil {
		return res, errors.NewBiz(op, "cancelled", ctx.Err())
	}

	res.Issues = criticalIssues(*v)
	if !v.Status.CanTransition(models.StatusPublished) {
		res.Issues = append(res.Issues, FieldIssue{
			Field: "status",
			Code:  errors.CodeInvalidStatus,
			Msg:   "publication is not legal from status " + string(v.Status),
		})
	}
	if len(res.Issues) > 0 {
		return res, errors.NewBizCode(op, res.Issues[0].Code, res.Issues[0].Msg)
	}

	if len(v.Media.Photos) == 0 {
		res.Warnings = append(res.Warnings, "published without photos")
	}
	if v.Commerce.Rating == nil {
		res.Warnings = append(res.Warnings, "published without rating")
	}

	ts := now.UTC()
	v.Status = models.StatusPublished
	v.PublishedAt = &ts
	v.LastError = ""
	return res, nil
}
