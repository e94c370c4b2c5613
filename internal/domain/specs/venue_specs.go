package specs

import (
	"context"
	"strings"

	"venue-rails/internal/models"
)

// HasDisplayName requires a non-blank venue name.
func HasDisplayName() Specification[models.Venue] {
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		return strings.TrimSpace(v.Raw.Name) != ""
	})
}

// HasValidCoords requires coordinates that exist and fall in range.
func HasValidCoords() Specification[models.Venue] {
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		return v.HasCoords()
	})
}

// HasSummaryOrDescription requires at least one body of text to show on
// a card.
func HasSummaryOrDescription() Specification[models.Venue] {
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		return v.HasDescriptionOrSummary()
	})
}

// SummaryMeetsFloor requires the summary to reach minChars once present.
// A venue with no summary but a description still passes; the floor only
// rejects weak summaries, not missing ones.
func SummaryMeetsFloor(minChars int) Specification[models.Venue] {
	if minChars < 1 {
		minChars = 1
	}
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		s := strings.TrimSpace(v.Clean.Summary)
		if s == "" {
			return true
		}
		return len([]rune(s)) >= minChars
	})
}

// HasMinTags requires at least minCount non-blank tags.
func HasMinTags(minCount int) Specification[models.Venue] {
	if minCount < 0 {
		minCount = 0
	}
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		c := 0
		for _, t := range v.Clean.Tags {
			if strings.TrimSpace(t) != "" {
				c++
			}
		}
		return c >= minCount
	})
}

// HasPhotos requires at least minCount photo URLs, counting the primary
// picture when set.
func HasPhotos(minCount int) Specification[models.Venue] {
	if minCount < 1 {
		minCount = 1
	}
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		c := len(v.Media.Photos)
		if v.Media.PictureURL != nil && *v.Media.PictureURL != "" {
			c++
		}
		return c >= minCount
	})
}

// ReadyForPublish requires a state from which publication is a legal
// transition: fresh enrichment, an editorial hold, a revision round, or an
// idempotent re-run on an already published record.
func ReadyForPublish() Specification[models.Venue] {
	return New(func(ctx context.Context, v models.Venue) bool {
		if ctx.Err() != nil {
			return false
		}
		return v.Status.CanTransition(models.StatusPublished)
	})
}
