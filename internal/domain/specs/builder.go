package specs

import (
	"context"
	"os"
	"strconv"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
)

// PublishRuleOptions controls how the composite publish spec is built.
// Sourced from environment to keep it simple and avoid touching global
// config wiring. ENV vars (with defaults):
//  PUBLISH_MIN_SUMMARY_CHARS (60)
//  PUBLISH_MIN_TAGS (3)
//  PUBLISH_REQUIRE_PHOTOS (false)

type PublishRuleOptions struct {
	MinSummaryChars int
	MinTags         int
	RequirePhotos   bool
}

func defaultOpts() PublishRuleOptions {
	return PublishRuleOptions{
		MinSummaryChars: constants.SummaryWeakBelow,
		MinTags:         constants.TagsSparseBelow,
		RequirePhotos:   false,
	}
}

func optsFromEnv() PublishRuleOptions {
	o := defaultOpts()
	if v := os.Getenv("PUBLISH_MIN_SUMMARY_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.MinSummaryChars = n
		}
	}
	if v := os.Getenv("PUBLISH_MIN_TAGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			o.MinTags = n
		}
	}
	if v := os.Getenv("PUBLISH_REQUIRE_PHOTOS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			o.RequirePhotos = b
		}
	}
	return o
}

// BuildPublishSpec builds the composite gate the editorial pass applies
// before promoting a venue to the search surface.
func BuildPublishSpec(o PublishRuleOptions) Specification[models.Venue] {
	s := ReadyForPublish().
		And(HasDisplayName()).
		And(HasValidCoords()).
		And(HasSummaryOrDescription()).
		And(SummaryMeetsFloor(o.MinSummaryChars)).
		And(HasMinTags(o.MinTags))
	if o.RequirePhotos {
		s = s.And(HasPhotos(1))
	}
	return s
}

// BuildPublishSpecFromEnv is BuildPublishSpec with env-sourced options.
func BuildPublishSpecFromEnv() Specification[models.Venue] {
	return BuildPublishSpec(optsFromEnv())
}

// Evaluate evaluates a spec with the provided context.
// Keeping it simple: callers should pass their request or processing ctx.
func Evaluate[T any](ctx context.Context, s Specification[T], v T) bool {
	return s.IsSatisfiedBy(ctx, v)
}
