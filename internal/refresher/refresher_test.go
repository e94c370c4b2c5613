package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"venue-rails/internal/domain"
	testutil "venue-rails/internal/testing"
	"venue-rails/pkg/database"
)

type fakeViews struct {
	mu         sync.Mutex
	rebuilds   int
	promotes   []string
	rows       int64
	rebuildErr error
	promoteErr error
}

func (f *fakeViews) RebuildOfflineCtx(ctx context.Context) (*domain.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilds++
	if f.rebuildErr != nil {
		return nil, f.rebuildErr
	}
	return &domain.RefreshResult{Table: "venues_search_b", Rows: f.rows, Duration: 12}, nil
}

func (f *fakeViews) PromoteCtx(ctx context.Context, offline string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promotes = append(f.promotes, offline)
	return nil
}

func (f *fakeViews) rebuildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuilds
}

type fakeBeats struct {
	mu    sync.Mutex
	beats []database.Heartbeat
	err   error
}

func (f *fakeBeats) UpsertHeartbeatCtx(ctx context.Context, hb *database.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.beats = append(f.beats, *hb)
	return nil
}

func newTestRefresher(t *testing.T, views *fakeViews, beats *fakeBeats, revalidate func() error) *Refresher {
	t.Helper()
	return New(views, beats, revalidate, Config{Interval: time.Hour}, testutil.NewTestLogger(t))
}

func TestRunOnce_RebuildPromoteHeartbeat(t *testing.T) {
	views := &fakeViews{rows: 321}
	beats := &fakeBeats{}
	r := newTestRefresher(t, views, beats, nil)

	if err := r.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(views.promotes) != 1 || views.promotes[0] != "venues_search_b" {
		t.Fatalf("promotes = %v, want the rebuilt generation", views.promotes)
	}
	if len(beats.beats) != 1 {
		t.Fatalf("heartbeats = %d, want 1", len(beats.beats))
	}
	hb := beats.beats[0]
	if hb.ViewName != database.LiveSearchTable {
		t.Errorf("heartbeat view = %q, want %q", hb.ViewName, database.LiveSearchTable)
	}
	if hb.RowCount != 321 {
		t.Errorf("heartbeat rows = %d, want 321", hb.RowCount)
	}

	st := r.Status()
	if st.LastSuccess.IsZero() {
		t.Error("LastSuccess not recorded")
	}
	if st.LastRows != 321 || st.Failures != 0 || st.LastError != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestRunOnce_RebuildFailureStopsIteration(t *testing.T) {
	views := &fakeViews{rebuildErr: errors.New("disk full")}
	beats := &fakeBeats{}
	r := newTestRefresher(t, views, beats, nil)

	if err := r.RunOnce(); err == nil {
		t.Fatal("expected the rebuild error to surface")
	}
	if len(views.promotes) != 0 || len(beats.beats) != 0 {
		t.Fatal("a failed rebuild must not promote or mark a heartbeat")
	}
	if err := r.RunOnce(); err == nil {
		t.Fatal("expected the rebuild error again")
	}
	if got := r.Status().Failures; got != 2 {
		t.Fatalf("consecutive failures = %d, want 2", got)
	}

	// recovery clears the streak
	views.mu.Lock()
	views.rebuildErr = nil
	views.mu.Unlock()
	if err := r.RunOnce(); err != nil {
		t.Fatalf("RunOnce after recovery: %v", err)
	}
	st := r.Status()
	if st.Failures != 0 || st.LastError != "" {
		t.Fatalf("status after recovery = %+v", st)
	}
}

func TestRunOnce_PromoteFailureSkipsHeartbeat(t *testing.T) {
	views := &fakeViews{promoteErr: errors.New("rename blocked")}
	beats := &fakeBeats{}
	r := newTestRefresher(t, views, beats, nil)

	if err := r.RunOnce(); err == nil {
		t.Fatal("expected the promote error to surface")
	}
	if len(beats.beats) != 0 {
		t.Fatal("heartbeat written despite a failed promotion")
	}
}

func TestRunOnce_HeartbeatFailureCounts(t *testing.T) {
	views := &fakeViews{rows: 5}
	beats := &fakeBeats{err: errors.New("table locked")}
	r := newTestRefresher(t, views, beats, nil)

	if err := r.RunOnce(); err == nil {
		t.Fatal("expected the heartbeat error to surface")
	}
	// the swap itself went through
	if len(views.promotes) != 1 {
		t.Fatalf("promotes = %v, want the swap recorded", views.promotes)
	}
	st := r.Status()
	if st.Failures != 1 || !st.LastSuccess.IsZero() {
		t.Fatalf("status = %+v, want a counted failure and no success", st)
	}
}

func TestRevalidation_RegressionFlipsHealth(t *testing.T) {
	var mu sync.Mutex
	var reErr error
	revalidate := func() error {
		mu.Lock()
		defer mu.Unlock()
		return reErr
	}
	views := &fakeViews{rows: 1}
	r := newTestRefresher(t, views, &fakeBeats{}, revalidate)

	if !r.Healthy() {
		t.Fatal("refresher should start healthy")
	}
	if err := r.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !r.Healthy() {
		t.Fatal("valid dictionary should keep the flag healthy")
	}

	mu.Lock()
	reErr = errors.New("duplicate synonym")
	mu.Unlock()
	if err := r.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if r.Healthy() {
		t.Fatal("dictionary regression must flip the health flag")
	}
	if ok := r.Status().OntologyOK; ok {
		t.Fatal("status should mirror the flag")
	}

	mu.Lock()
	reErr = nil
	mu.Unlock()
	if err := r.RunOnce(); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !r.Healthy() {
		t.Fatal("a fixed dictionary should restore health")
	}
}

func TestStartStop_LoopRefreshesAndHalts(t *testing.T) {
	views := &fakeViews{rows: 2}
	beats := &fakeBeats{}
	r := New(views, beats, nil, Config{Interval: 5 * time.Millisecond}, testutil.NewTestLogger(t))

	r.Start()
	deadline := time.After(2 * time.Second)
	for views.rebuildCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("loop never completed two iterations")
		case <-time.After(2 * time.Millisecond):
		}
	}
	r.Stop()

	time.Sleep(20 * time.Millisecond)
	settled := views.rebuildCount()
	time.Sleep(30 * time.Millisecond)
	if got := views.rebuildCount(); got != settled {
		t.Fatalf("loop still running after Stop: %d -> %d", settled, got)
	}
}
