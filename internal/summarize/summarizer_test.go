package summarize

import (
	"strings"
	"testing"

	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewLogger(logging.LogConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: "stderr",
	})
	if err != nil {
		t.Fatalf("test logger: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func newTestSummarizer(t *testing.T) *Summarizer {
	t.Helper()
	s, err := New(Config{
		APIKey:     "test-key",
		MaxChars:   80,
		Vocabulary: []string{"rooftop", "tom yum", "cocktails"},
	}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	return s
}

func TestParseResult_Valid(t *testing.T) {
	s := newTestSummarizer(t)

	raw := `{"summary":"Breezy rooftop bar with river views.",
		"tags":["Rooftop","cocktails","rooftop","sky high"],
		"signals":{"hq_experience":true,"dateworthy":true}}`

	res, err := s.parseResult(raw)
	if err != nil {
		t.Fatalf("parseResult: %+v", err)
	}
	if res.Summary != "Breezy rooftop bar with river views." {
		t.Fatalf("summary = %q", res.Summary)
	}
	// folded, deduped, vocabulary-filtered
	if len(res.Tags) != 2 || res.Tags[0] != "rooftop" || res.Tags[1] != "cocktails" {
		t.Fatalf("tags = %v", res.Tags)
	}
	if !res.Signals.HQExperience || !res.Signals.Dateworthy {
		t.Fatalf("signals = %+v", res.Signals)
	}
	if res.Signals.LocalGem || res.Signals.Extraordinary {
		t.Fatalf("unset signals must stay false: %+v", res.Signals)
	}
}

func TestParseResult_MarkdownFences(t *testing.T) {
	s := newTestSummarizer(t)

	raw := "```json\n{\"summary\":\"Quiet soi noodle spot.\",\"tags\":[]}\n```"
	res, err := s.parseResult(raw)
	if err != nil {
		t.Fatalf("parseResult: %+v", err)
	}
	if res.Summary != "Quiet soi noodle spot." {
		t.Fatalf("summary = %q", res.Summary)
	}
}

func TestParseResult_EmptySummaryIsNoSummary(t *testing.T) {
	s := newTestSummarizer(t)

	tcs := []struct {
		name string
		raw  string
	}{
		{"empty field", `{"summary":"","tags":["rooftop"]}`},
		{"whitespace", `{"summary":"   "}`},
		{"not json", "I cannot summarize this venue."},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.parseResult(tc.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errs.HasCode(err, errs.CodeNoSummary) {
				t.Fatalf("code = %s, want NO_SUMMARY", errs.CodeOf(err))
			}
		})
	}
}

func TestParseResult_ClipsToMaxChars(t *testing.T) {
	s := newTestSummarizer(t)

	long := strings.Repeat("a", 200)
	res, err := s.parseResult(`{"summary":"` + long + `"}`)
	if err != nil {
		t.Fatalf("parseResult: %+v", err)
	}
	if got := len([]rune(res.Summary)); got > 80 {
		t.Fatalf("summary length = %d, want <= 80", got)
	}
}

func TestFilterTags_NoVocabularyKeepsAll(t *testing.T) {
	s, err := New(Config{APIKey: "test-key"}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	got := s.filterTags([]string{"Anything", "goes", "anything"})
	if len(got) != 2 {
		t.Fatalf("tags = %v", got)
	}
}
