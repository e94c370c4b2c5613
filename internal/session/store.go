// Package session keeps short-lived taste profiles built from feedback
// signals. Profiles live in memory only: a session that stays quiet past its
// TTL is forgotten, and a restart forgets everyone.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
)

// recentCap bounds the signal excerpt returned in Stats.
const recentCap = 10

// noveltyTags nudge the novelty appetite upward when a liked venue carries
// them.
var noveltyTags = map[string]bool{
	"hidden_gem": true,
	"unique":     true,
	"new":        true,
	"different":  true,
}

// Config controls profile lifetime and memory bounds.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	RingCap         int
}

// DefaultConfig returns the production session settings.
func DefaultConfig() Config {
	return Config{
		TTL:             constants.SessionTTLDefault,
		CleanupInterval: constants.SessionCleanupInterval,
		RingCap:         constants.SessionRingCap,
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.SessionTTLDefault
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = constants.SessionCleanupInterval
	}
	if cfg.RingCap <= 0 {
		cfg.RingCap = constants.SessionRingCap
	}
	return cfg
}

// profile is the mutable per-session state. All access goes through the
// store's lock.
type profile struct {
	id        string
	createdAt time.Time
	lastSeen  time.Time
	vibes     map[string]float64
	novelty   float64
	ring      []models.FeedbackSignal
	counts    map[models.FeedbackAction]int
}

// Stats is a read-only snapshot of a profile.
type Stats struct {
	SessionID  string                        `json:"session_id"`
	CreatedAt  time.Time                     `json:"created_at"`
	LastSeenAt time.Time                     `json:"last_seen_at"`
	Vibes      map[string]float64            `json:"vibes"`
	Novelty    float64                       `json:"novelty"`
	Signals    int                           `json:"signals"`
	Counts     map[models.FeedbackAction]int `json:"counts"`
	Recent     []models.FeedbackSignal       `json:"recent"`
}

// Store holds session profiles keyed by session id.
type Store struct {
	mu    sync.RWMutex
	cfg   Config
	onto  *ontology.Ontology
	log   *logging.ComponentLogger
	now   func() time.Time
	items map[string]*profile

	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an empty session store.
func New(onto *ontology.Ontology, cfg Config, log *logging.Logger) *Store {
	return &Store{
		cfg:   normalizeConfig(cfg),
		onto:  onto,
		log:   log.WithComponent("session"),
		now:   time.Now,
		items: make(map[string]*profile),
		stop:  make(chan struct{}),
	}
}

// EnsureSession returns id unchanged when present, otherwise a fresh UUID.
// It does not allocate a profile; that happens on the first signal.
func (s *Store) EnsureSession(id string) string {
	if strings.TrimSpace(id) == "" {
		return uuid.NewString()
	}
	return id
}

// AddSignal folds one feedback signal into the session's profile, creating
// the profile on first contact. tags are the canonical ontology tags of the
// venue the signal refers to; they drive the vibe vector for like-shaped
// actions and are ignored for open/dwell.
func (s *Store) AddSignal(sig models.FeedbackSignal, tags []string) error {
	const op = "session.AddSignal"
	if err := sig.Validate(); err != nil {
		return errs.NewValidation(op, "invalid feedback signal", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	p := s.items[sig.SessionID]
	if p == nil || s.expired(p, ts) {
		p = &profile{
			id:        sig.SessionID,
			createdAt: ts,
			vibes:     make(map[string]float64),
			novelty:   constants.SessionNoveltyDefault,
			counts:    make(map[models.FeedbackAction]int),
		}
		s.items[sig.SessionID] = p
	}
	p.lastSeen = ts
	p.counts[sig.Action]++

	p.ring = append(p.ring, sig)
	if len(p.ring) > s.cfg.RingCap {
		p.ring = p.ring[len(p.ring)-s.cfg.RingCap:]
	}

	switch sig.Action {
	case models.ActionLike, models.ActionAddToRoute:
		s.reinforce(p, tags)
	case models.ActionUnlike:
		s.decay(p, tags)
	}

	metrics.SessionsActive.Set(float64(len(s.items)))
	return nil
}

// reinforce bumps each tag's weight by the base increment scaled by the
// ontology boost, then renormalizes so the vector stays a distribution.
func (s *Store) reinforce(p *profile, tags []string) {
	novel := false
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		p.vibes[tag] += constants.SessionVibeIncrement * s.onto.Boost(tag)
		if noveltyTags[tag] {
			novel = true
		}
	}
	normalize(p.vibes)
	if novel {
		p.novelty += (constants.SessionNoveltyTarget - p.novelty) * constants.SessionNoveltyStep
	}
}

// decay halves the weight of every matched tag. Unmatched weights grow in
// relative terms through the renormalization.
func (s *Store) decay(p *profile, tags []string) {
	touched := false
	for _, tag := range tags {
		if w, ok := p.vibes[tag]; ok {
			p.vibes[tag] = w * constants.SessionUnlikeDecay
			touched = true
		}
	}
	if touched {
		normalize(p.vibes)
	}
}

func normalize(vibes map[string]float64) {
	var sum float64
	for _, w := range vibes {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for tag, w := range vibes {
		vibes[tag] = w / sum
	}
}

// Profile returns a snapshot of the session, or false when the session is
// unknown or has expired.
func (s *Store) Profile(id string) (*Stats, bool) {
	p := s.live(id)
	if p == nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{
		SessionID:  p.id,
		CreatedAt:  p.createdAt,
		LastSeenAt: p.lastSeen,
		Vibes:      make(map[string]float64, len(p.vibes)),
		Novelty:    p.novelty,
		Signals:    len(p.ring),
		Counts:     make(map[models.FeedbackAction]int, len(p.counts)),
	}
	for tag, w := range p.vibes {
		st.Vibes[tag] = w
	}
	for action, n := range p.counts {
		st.Counts[action] = n
	}
	start := len(p.ring) - recentCap
	if start < 0 {
		start = 0
	}
	st.Recent = append(st.Recent, p.ring[start:]...)
	return st, true
}

// VibeVector returns a copy of the session's taste weights for use in
// retrieval scoring, or nil when there is no live profile.
func (s *Store) VibeVector(id string) map[string]float64 {
	p := s.live(id)
	if p == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(p.vibes) == 0 {
		return nil
	}
	vec := make(map[string]float64, len(p.vibes))
	for tag, w := range p.vibes {
		vec[tag] = w
	}
	return vec
}

// Novelty returns the session's novelty appetite, or the default for unknown
// sessions.
func (s *Store) Novelty(id string) float64 {
	p := s.live(id)
	if p == nil {
		return constants.SessionNoveltyDefault
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return p.novelty
}

// live fetches the profile when present and fresh, dropping it when the TTL
// has lapsed.
func (s *Store) live(id string) *profile {
	s.mu.RLock()
	p := s.items[id]
	fresh := p != nil && !s.expired(p, s.now())
	s.mu.RUnlock()
	if p == nil {
		return nil
	}
	if fresh {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.items[id]; cur != nil && s.expired(cur, s.now()) {
		delete(s.items, id)
		metrics.SessionsActive.Set(float64(len(s.items)))
	}
	return nil
}

func (s *Store) expired(p *profile, now time.Time) bool {
	return now.Sub(p.createdAt) > s.cfg.TTL
}

// Cleanup drops every expired profile and returns how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, p := range s.items {
		if s.expired(p, now) {
			delete(s.items, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.SessionsActive.Set(float64(len(s.items)))
	}
	return removed
}

// Len reports the number of profiles currently held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Start launches the periodic cleanup loop.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

// Stop halts the cleanup loop. Profiles stay readable until the TTL passes.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Store) loop() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Cleanup(); n > 0 {
				s.log.Debug("expired sessions swept", logging.Int("removed", n))
			}
		}
	}
}
