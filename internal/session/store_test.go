package session

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"venue-rails/internal/models"
	"venue-rails/internal/ontology"
	testutil "venue-rails/internal/testing"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	onto, err := ontology.LoadDefault()
	if err != nil {
		t.Fatalf("load ontology: %v", err)
	}
	return New(onto, cfg, testutil.NewTestLogger(t))
}

func signal(session string, place int64, action models.FeedbackAction) models.FeedbackSignal {
	return models.FeedbackSignal{
		SessionID: session,
		PlaceID:   place,
		Action:    action,
		At:        time.Now(),
	}
}

func mustAdd(t *testing.T, s *Store, sig models.FeedbackSignal, tags []string) {
	t.Helper()
	if err := s.AddSignal(sig, tags); err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
}

func TestAddSignal_LikeBuildsNormalizedVibes(t *testing.T) {
	s := newTestStore(t, Config{})
	mustAdd(t, s, signal("sess-1", 1, models.ActionLike), []string{"rooftop_bar", "skyline"})

	vec := s.VibeVector("sess-1")
	if vec == nil {
		t.Fatal("expected a vibe vector after a like")
	}
	var sum float64
	for _, w := range vec {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("vibe weights sum = %v, want 1.0", sum)
	}
	// rooftop_bar carries a dictionary boost of 1.1, skyline falls back to 1.0
	if vec["rooftop_bar"] <= vec["skyline"] {
		t.Fatalf("boosted tag should outweigh plain tag: rooftop_bar=%v skyline=%v",
			vec["rooftop_bar"], vec["skyline"])
	}
}

func TestAddSignal_NoveltyClimbsOnNoveltyTags(t *testing.T) {
	s := newTestStore(t, Config{})
	id := "sess-novel"

	if got := s.Novelty(id); got != 0.5 {
		t.Fatalf("default novelty = %v, want 0.5", got)
	}

	mustAdd(t, s, signal(id, 1, models.ActionLike), []string{"hidden_gem"})
	first := s.Novelty(id)
	if first <= 0.5 || first >= 0.8 {
		t.Fatalf("novelty after one signal = %v, want in (0.5, 0.8)", first)
	}

	mustAdd(t, s, signal(id, 2, models.ActionLike), []string{"hidden_gem"})
	second := s.Novelty(id)
	if second <= first || second >= 0.8 {
		t.Fatalf("novelty should climb toward 0.8: first=%v second=%v", first, second)
	}
}

func TestAddSignal_PlainTagsLeaveNoveltyAlone(t *testing.T) {
	s := newTestStore(t, Config{})
	mustAdd(t, s, signal("sess-plain", 1, models.ActionLike), []string{"cocktails", "rooftop_bar"})
	if got := s.Novelty("sess-plain"); got != 0.5 {
		t.Fatalf("novelty = %v, want unchanged 0.5", got)
	}
}

func TestAddSignal_UnlikeDecaysMatchedTags(t *testing.T) {
	s := newTestStore(t, Config{})
	id := "sess-decay"
	mustAdd(t, s, signal(id, 1, models.ActionLike), []string{"cocktails"})
	mustAdd(t, s, signal(id, 2, models.ActionLike), []string{"live_music"})

	before := s.VibeVector(id)
	mustAdd(t, s, signal(id, 1, models.ActionUnlike), []string{"cocktails"})
	after := s.VibeVector(id)

	if after["cocktails"] >= before["cocktails"] {
		t.Fatalf("cocktails should lose weight: before=%v after=%v",
			before["cocktails"], after["cocktails"])
	}
	if after["live_music"] <= before["live_music"] {
		t.Fatalf("live_music should gain relative weight: before=%v after=%v",
			before["live_music"], after["live_music"])
	}
	var sum float64
	for _, w := range after {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum = %v after unlike, want 1.0", sum)
	}
}

func TestAddSignal_UnlikeUnknownTagIsNoOp(t *testing.T) {
	s := newTestStore(t, Config{})
	id := "sess-miss"
	mustAdd(t, s, signal(id, 1, models.ActionLike), []string{"cocktails"})

	before := s.VibeVector(id)
	mustAdd(t, s, signal(id, 2, models.ActionUnlike), []string{"thai"})
	after := s.VibeVector(id)

	if after["cocktails"] != before["cocktails"] {
		t.Fatalf("unlike with unseen tags must not reshape the vector: before=%v after=%v",
			before["cocktails"], after["cocktails"])
	}
}

func TestAddSignal_OpenAndDwellOnlyCount(t *testing.T) {
	s := newTestStore(t, Config{})
	id := "sess-open"
	mustAdd(t, s, signal(id, 1, models.ActionOpen), []string{"cocktails"})

	dwell := signal(id, 1, models.ActionDwell)
	ms := int64(4200)
	dwell.DwellMs = &ms
	mustAdd(t, s, dwell, []string{"cocktails"})

	if vec := s.VibeVector(id); vec != nil {
		t.Fatalf("open/dwell must not build a vibe vector, got %v", vec)
	}
	st, ok := s.Profile(id)
	if !ok {
		t.Fatal("expected a live profile")
	}
	if st.Signals != 2 {
		t.Fatalf("Signals = %d, want 2", st.Signals)
	}
	if st.Counts[models.ActionOpen] != 1 || st.Counts[models.ActionDwell] != 1 {
		t.Fatalf("counts = %v, want one open and one dwell", st.Counts)
	}
}

func TestAddSignal_RejectsInvalidSignal(t *testing.T) {
	s := newTestStore(t, Config{})

	bad := signal("", 1, models.ActionLike)
	if err := s.AddSignal(bad, nil); err == nil {
		t.Fatal("expected an error for a missing session id")
	}
	if s.Len() != 0 {
		t.Fatalf("invalid signal must not allocate a profile, have %d", s.Len())
	}
}

func TestAddSignal_RingCapDropsOldest(t *testing.T) {
	s := newTestStore(t, Config{RingCap: 5})
	id := "sess-ring"
	for i := int64(1); i <= 8; i++ {
		mustAdd(t, s, signal(id, i, models.ActionOpen), nil)
	}

	st, ok := s.Profile(id)
	if !ok {
		t.Fatal("expected a live profile")
	}
	if st.Signals != 5 {
		t.Fatalf("Signals = %d, want ring capped at 5", st.Signals)
	}
	if got := st.Recent[0].PlaceID; got != 4 {
		t.Fatalf("oldest retained signal place = %d, want 4", got)
	}
	if got := st.Recent[len(st.Recent)-1].PlaceID; got != 8 {
		t.Fatalf("newest retained signal place = %d, want 8", got)
	}
}

func TestProfile_ExpiresAfterTTL(t *testing.T) {
	s := newTestStore(t, Config{TTL: time.Hour})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	mustAdd(t, s, signal("sess-ttl", 1, models.ActionLike), []string{"thai"})
	if _, ok := s.Profile("sess-ttl"); !ok {
		t.Fatal("profile should be live before the TTL")
	}

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok := s.Profile("sess-ttl"); ok {
		t.Fatal("profile should expire after the TTL")
	}
	if vec := s.VibeVector("sess-ttl"); vec != nil {
		t.Fatalf("expired session must not serve a vibe vector, got %v", vec)
	}
	if s.Len() != 0 {
		t.Fatalf("expired profile should be dropped on read, have %d", s.Len())
	}
}

func TestAddSignal_ExpiredSessionStartsFresh(t *testing.T) {
	s := newTestStore(t, Config{TTL: time.Hour})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	mustAdd(t, s, signal("sess-fresh", 1, models.ActionLike), []string{"thai"})

	s.now = func() time.Time { return base.Add(3 * time.Hour) }
	mustAdd(t, s, signal("sess-fresh", 2, models.ActionLike), []string{"cocktails"})

	st, ok := s.Profile("sess-fresh")
	if !ok {
		t.Fatal("expected the replacement profile to be live")
	}
	if st.Signals != 1 {
		t.Fatalf("Signals = %d, want history reset to 1", st.Signals)
	}
	if _, stale := st.Vibes["thai"]; stale {
		t.Fatalf("stale vibes leaked into the fresh profile: %v", st.Vibes)
	}
}

func TestCleanup_RemovesExpiredProfiles(t *testing.T) {
	s := newTestStore(t, Config{TTL: time.Hour})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	mustAdd(t, s, signal("old-1", 1, models.ActionOpen), nil)
	mustAdd(t, s, signal("old-2", 2, models.ActionOpen), nil)

	s.now = func() time.Time { return base.Add(90 * time.Minute) }
	mustAdd(t, s, signal("young", 3, models.ActionOpen), nil)

	if removed := s.Cleanup(); removed != 2 {
		t.Fatalf("Cleanup removed %d, want 2", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d after cleanup, want 1", s.Len())
	}
	if _, ok := s.Profile("young"); !ok {
		t.Fatal("fresh profile should survive cleanup")
	}
}

func TestProfile_SnapshotIsDetached(t *testing.T) {
	s := newTestStore(t, Config{})
	id := "sess-snap"
	mustAdd(t, s, signal(id, 1, models.ActionLike), []string{"cocktails"})

	st, ok := s.Profile(id)
	if !ok {
		t.Fatal("expected a live profile")
	}
	st.Vibes["cocktails"] = 99
	st.Counts[models.ActionLike] = 99

	again, _ := s.Profile(id)
	if again.Vibes["cocktails"] == 99 || again.Counts[models.ActionLike] == 99 {
		t.Fatal("mutating a snapshot must not touch the stored profile")
	}
}

func TestEnsureSession(t *testing.T) {
	s := newTestStore(t, Config{})

	if got := s.EnsureSession("caller-chosen"); got != "caller-chosen" {
		t.Fatalf("EnsureSession kept id %q, want caller-chosen", got)
	}
	minted := s.EnsureSession("  ")
	if _, err := uuid.Parse(minted); err != nil {
		t.Fatalf("EnsureSession minted %q, want a UUID: %v", minted, err)
	}
	if s.Len() != 0 {
		t.Fatal("EnsureSession must not allocate profiles")
	}
}
