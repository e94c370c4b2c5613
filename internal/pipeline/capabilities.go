package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"venue-rails/internal/geocode"
	"venue-rails/internal/models"
	"venue-rails/internal/summarize"
)

// Summarizer produces clean summary text and tags for a raw record.
type Summarizer interface {
	Summarize(ctx context.Context, v models.Venue) (*summarize.Result, error)
}

// Enricher resolves a record against the places provider.
type Enricher interface {
	Enrich(ctx context.Context, v models.Venue) (*geocode.Enrichment, error)
}

var (
	_ Summarizer = (*summarize.Summarizer)(nil)
	_ Enricher   = (*geocode.Enricher)(nil)
)

// pacedSummarizer throttles calls against the LLM provider.
type pacedSummarizer struct {
	inner Summarizer
	lim   *rate.Limiter
}

// PaceSummarizer wraps s with a provider-wide rate limit. Non-positive
// rps returns s unchanged.
func PaceSummarizer(s Summarizer, rps float64) Summarizer {
	if s == nil || rps <= 0 {
		return s
	}
	return &pacedSummarizer{inner: s, lim: rate.NewLimiter(rate.Limit(rps), burstFor(rps))}
}

func (p *pacedSummarizer) Summarize(ctx context.Context, v models.Venue) (*summarize.Result, error) {
	if err := p.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Summarize(ctx, v)
}

// pacedEnricher throttles calls against the places provider.
type pacedEnricher struct {
	inner Enricher
	lim   *rate.Limiter
}

// PaceEnricher wraps e with a provider-wide rate limit. Non-positive
// rps returns e unchanged.
func PaceEnricher(e Enricher, rps float64) Enricher {
	if e == nil || rps <= 0 {
		return e
	}
	return &pacedEnricher{inner: e, lim: rate.NewLimiter(rate.Limit(rps), burstFor(rps))}
}

func (p *pacedEnricher) Enrich(ctx context.Context, v models.Venue) (*geocode.Enrichment, error) {
	if err := p.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Enrich(ctx, v)
}

// burstFor allows short bursts without letting slow providers pile up.
func burstFor(rps float64) int {
	b := int(rps)
	if b < 1 {
		b = 1
	}
	if b > 10 {
		b = 10
	}
	return b
}
