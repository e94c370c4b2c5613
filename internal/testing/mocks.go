package testutil

import (
	"context"
	"sync"

	"venue-rails/internal/geocode"
	"venue-rails/internal/models"
	"venue-rails/internal/summarize"
)

// MockSummarizer implements pipeline.Summarizer for tests.
type MockSummarizer struct {
	Mu    sync.Mutex
	Resp  map[int64]*summarize.Result
	Err   map[int64]error
	Calls int
}

func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{Resp: map[int64]*summarize.Result{}, Err: map[int64]error{}}
}

func (m *MockSummarizer) Summarize(ctx context.Context, v models.Venue) (*summarize.Result, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if err, ok := m.Err[v.ID]; ok {
		return nil, err
	}
	if r, ok := m.Resp[v.ID]; ok {
		return r, nil
	}
	// default: a plausible valid result
	return &summarize.Result{
		Summary: "A dependable neighborhood spot with honest cooking and a warm room.",
		Tags:    []string{"casual", "local-favorite", "dinner"},
	}, nil
}

// MockEnricher implements pipeline.Enricher for tests.
type MockEnricher struct {
	Mu    sync.Mutex
	Resp  map[int64]*geocode.Enrichment
	Err   map[int64]error
	Calls int
}

func NewMockEnricher() *MockEnricher {
	return &MockEnricher{Resp: map[int64]*geocode.Enrichment{}, Err: map[int64]error{}}
}

func (m *MockEnricher) Enrich(ctx context.Context, v models.Venue) (*geocode.Enrichment, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if err, ok := m.Err[v.ID]; ok {
		return nil, err
	}
	if r, ok := m.Resp[v.ID]; ok {
		return r, nil
	}
	// default: downtown Bangkok with full contact data
	return &geocode.Enrichment{
		PlaceID:          "mock-place-id",
		Lat:              13.7563,
		Lng:              100.5018,
		FormattedAddress: "1 Mock Road, Bangkok",
		Phone:            "+66 2 000 0000",
		Website:          "https://mock.example",
		Rating:           4.3,
		PriceLevel:       2,
		ReviewCount:      250,
		Photos:           []string{"https://photos.example/1", "https://photos.example/2", "https://photos.example/3"},
		BusinessOpen:     true,
	}, nil
}
