package pipeline

import (
	"context"
	"testing"
	"time"

	"venue-rails/internal/editor"
	"venue-rails/internal/models"
	"venue-rails/internal/signals"
	"venue-rails/internal/summarize"
	testutil "venue-rails/internal/testing"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/events"
)

func TestRoute_PicksStepByStatus(t *testing.T) {
	eng := testEngine(t, newMemStore(), testutil.NewMockSummarizer(), testutil.NewMockEnricher())
	lat, lng := 13.75, 100.5

	cases := []struct {
		name    string
		mutate  func(*models.Venue)
		initial bool
		want    string // expected agent, "" = settled
	}{
		{"fresh record summarizes", func(v *models.Venue) {}, true, events.AgentSummarizer},
		{"summarized record enriches", func(v *models.Venue) {
			v.Status = models.StatusSummarized
		}, true, events.AgentEnricher},
		{"enriched record goes to review", func(v *models.Venue) {
			v.Status = models.StatusEnriched
		}, true, events.AgentEditor},
		{"revision without summary re-summarizes", func(v *models.Venue) {
			v.Status = models.StatusNeedsRevision
		}, true, events.AgentSummarizer},
		{"revision without coords re-enriches", func(v *models.Venue) {
			v.Status = models.StatusNeedsRevision
			v.Clean.Summary = "A long enough summary that only the missing coordinates hold this record back."
		}, true, events.AgentEnricher},
		{"revision with data re-reviews", func(v *models.Venue) {
			v.Status = models.StatusNeedsRevision
			v.Clean.Summary = "A long enough summary that nothing obvious holds this record back anymore."
			v.Geo.Lat, v.Geo.Lng = &lat, &lng
		}, true, events.AgentEditor},
		{"fresh revision stays parked mid-job", func(v *models.Venue) {
			v.Status = models.StatusNeedsRevision
		}, false, ""},
		{"review pending waits for a human", func(v *models.Venue) {
			v.Status = models.StatusReviewPending
		}, true, ""},
		{"published is terminal", func(v *models.Venue) {
			v.Status = models.StatusPublished
		}, true, ""},
		{"failed is terminal", func(v *models.Venue) {
			v.Status = models.StatusFailed
		}, true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := rawVenue(1)
			tc.mutate(v)
			var got string
			if st := eng.route(v, tc.initial); st != nil {
				got = st.Agent()
			}
			if got != tc.want {
				t.Errorf("route agent = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSummarizeStep_AppliesResultAndSignals(t *testing.T) {
	sum := testutil.NewMockSummarizer()
	sum.Resp[7] = &summarize.Result{
		Summary: "Charcoal woks, a tiny counter and pad thai worth crossing town for; a proper local secret.",
		Tags:    []string{"noodles", "casual", "late-night"},
		Signals: models.Signals{LocalGem: true},
	}
	st := &summarizeStep{cap: sum, calc: signals.NewDefault()}

	out, evs, err := st.Run(context.Background(), *rawVenue(7))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != models.StatusSummarized {
		t.Errorf("status = %s, want %s", out.Status, models.StatusSummarized)
	}
	if out.Clean.Summary == "" || len(out.Clean.Tags) != 3 {
		t.Errorf("result not applied: summary=%q tags=%v", out.Clean.Summary, out.Clean.Tags)
	}
	if !out.Signals.LocalGem {
		t.Error("proposed signal not merged")
	}
	if out.Attempts.Summarizer != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts.Summarizer)
	}
	if len(evs) != 1 || evs[0].Type != events.TypeSummarized {
		t.Errorf("events = %+v, want one %s", evs, events.TypeSummarized)
	}
}

func TestSummarizeStep_RejectsEmptyText(t *testing.T) {
	sum := testutil.NewMockSummarizer()
	sum.Resp[7] = &summarize.Result{Summary: "   "}
	st := &summarizeStep{cap: sum, calc: signals.NewDefault()}

	out, _, err := st.Run(context.Background(), *rawVenue(7))
	if err == nil {
		t.Fatal("want error for blank summary")
	}
	if !errs.HasCode(err, errs.CodeNoSummary) {
		t.Errorf("code = %s, want %s", errs.CodeOf(err), errs.CodeNoSummary)
	}
	if out.Attempts.Summarizer != 1 {
		t.Errorf("attempts = %d, want the failed try counted", out.Attempts.Summarizer)
	}
}

func TestEditorStep_RevisionCarriesDiagnostics(t *testing.T) {
	st := &editorStep{ed: editor.New(editor.DefaultConfig()), calc: signals.NewDefault(), now: time.Now}

	v := rawVenue(8)
	v.Status = models.StatusEnriched
	v.Clean.Summary = "Too short." // and no coordinates at all

	out, evs, err := st.Run(context.Background(), *v)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != models.StatusNeedsRevision {
		t.Fatalf("status = %s, want %s", out.Status, models.StatusNeedsRevision)
	}
	if out.LastError == "" {
		t.Error("LastError not set from review reason")
	}
	if out.Quality.Summary != models.FlagWeak {
		t.Errorf("summary grade = %s, want %s", out.Quality.Summary, models.FlagWeak)
	}
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	if evs[0].Type != events.TypeNeedsRevision {
		t.Errorf("event type = %s, want %s", evs[0].Type, events.TypeNeedsRevision)
	}
	if evs[0].Code != errs.CodeMissingCoords {
		t.Errorf("event code = %s, want %s", evs[0].Code, errs.CodeMissingCoords)
	}
	if _, ok := evs[0].Data["issues"]; !ok {
		t.Error("field diagnostics missing from event data")
	}
}
