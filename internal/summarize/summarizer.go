package summarize

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"venue-rails/internal/constants"
	"venue-rails/internal/models"
	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
	"venue-rails/pkg/utils"
)

// Result is the structured output of one summarizer call: the editorial
// summary, the canonical tags, and the signal booleans the model suggested.
type Result struct {
	Summary string
	Tags    []string
	Signals models.Signals
}

// Config tunes the summarizer capability.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxChars    int
	City        string
	// Vocabulary is the allowed canonical tag set, usually the ontology's
	// tag list. Tags outside it are dropped from results.
	Vocabulary []string
}

// Summarizer turns raw venue text into an editorial card via the LLM
// provider.
type Summarizer struct {
	client *openai.Client
	tpls   *promptSet
	cfg    Config
	vocab  map[string]bool
	costs  *CostTracker
	log    *logging.ComponentLogger
}

func New(cfg Config, logger *logging.Logger) (*Summarizer, error) {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.SummarizerDefaultAPITimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 280
	}
	if cfg.City == "" {
		cfg.City = "Bangkok"
	}

	tpls, err := loadPrompts()
	if err != nil {
		return nil, err
	}
	vocab := make(map[string]bool, len(cfg.Vocabulary))
	for _, t := range cfg.Vocabulary {
		vocab[utils.FoldText(t)] = true
	}
	return &Summarizer{
		client: openai.NewClient(cfg.APIKey),
		tpls:   tpls,
		cfg:    cfg,
		vocab:  vocab,
		costs:  NewCostTracker(),
		log:    logger.WithComponent("summarizer"),
	}, nil
}

// Costs exposes the running usage tracker for stats endpoints.
func (s *Summarizer) Costs() *CostTracker { return s.costs }

// Summarize produces the editorial card for one venue. Provider failures
// come back as retryable PROVIDER_ERROR; an empty or refused completion is
// the semantic NO_SUMMARY.
func (s *Summarizer) Summarize(ctx context.Context, v models.Venue) (*Result, error) {
	const op = "summarize.Summarize"

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	system, err := s.tpls.render("summarize_system", map[string]any{
		"City":       s.cfg.City,
		"MaxChars":   s.cfg.MaxChars,
		"Vocabulary": strings.Join(s.cfg.Vocabulary, ", "),
	})
	if err != nil {
		return nil, err
	}
	user, err := s.tpls.render("summarize_user", map[string]any{
		"Name":        v.Raw.Name,
		"Category":    v.Raw.Category,
		"Address":     v.Raw.Address,
		"Description": v.Raw.Description,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    float32(s.cfg.Temperature),
		MaxTokens:      s.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errs.NewTimeout(op, "openai", ctx.Err())
		}
		return nil, errs.NewProviderError(op, "openai", err)
	}

	s.costs.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	metrics.LLMTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return nil, errs.NewBizCode(op, errs.CodeNoSummary, "model returned no choices")
	}
	res, err := s.parseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	s.log.Debug("summarized venue",
		logging.Int64("venue_id", v.ID),
		logging.Int("tags", len(res.Tags)),
		logging.Int("summary_chars", len([]rune(res.Summary))))
	return res, nil
}

// payload mirrors the JSON contract of summarize_system.txt.tmpl.
type payload struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Signals struct {
		HQExperience  bool `json:"hq_experience"`
		LocalGem      bool `json:"local_gem"`
		Dateworthy    bool `json:"dateworthy"`
		Extraordinary bool `json:"extraordinary"`
	} `json:"signals"`
}

func (s *Summarizer) parseResult(raw string) (*Result, error) {
	const op = "summarize.parseResult"

	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errs.NewBizCode(op, errs.CodeNoSummary, "completion is not the expected JSON")
	}

	summary := clipRunes(strings.TrimSpace(p.Summary), s.cfg.MaxChars)
	if summary == "" {
		return nil, errs.NewBizCode(op, errs.CodeNoSummary, "model produced an empty summary")
	}

	res := &Result{Summary: summary, Tags: s.filterTags(p.Tags)}
	res.Signals.HQExperience = p.Signals.HQExperience
	res.Signals.LocalGem = p.Signals.LocalGem
	res.Signals.Dateworthy = p.Signals.Dateworthy
	res.Signals.Extraordinary = p.Signals.Extraordinary
	return res, nil
}

// filterTags folds, dedups, and drops tags outside the allowed vocabulary.
func (s *Summarizer) filterTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = utils.FoldText(t)
		if t == "" || seen[t] {
			continue
		}
		if len(s.vocab) > 0 && !s.vocab[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func clipRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}
