// Package analyst batch-scores new discoveries with the model: relevance,
// velocity, risk level, per-platform fit and suggested formats.
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/contentpipe/internal/llm"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// DefaultBatchSize is how many discoveries one model call scores.
const DefaultBatchSize = 20

const agentName = "analyst"

// Store is the persistence surface the analyst needs.
type Store interface {
	ListDiscoveriesByStatus(ctx context.Context, status pipeline.DiscoveryStatus, limit int) ([]*pipeline.Discovery, error)
	UpdateDiscoveryAnalysis(ctx context.Context, d *pipeline.Discovery) error
}

// Completer runs one ledger-recorded model call.
type Completer interface {
	Run(ctx context.Context, agent, task string, req llm.Request) (*llm.Response, error)
}

// Summary reports one analyst run.
type Summary struct {
	Analyzed      int
	Missing       int
	FailedBatches int
}

// Analyst scores discoveries in fixed-size batches.
type Analyst struct {
	store     Store
	completer Completer
	logger    *slog.Logger
	batchSize int
}

// New builds an analyst. batchSize <= 0 uses the default.
func New(store Store, completer Completer, logger *slog.Logger, batchSize int) *Analyst {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Analyst{store: store, completer: completer, logger: logger, batchSize: batchSize}
}

// verdict is the per-item shape the model must return.
type verdict struct {
	SourceID         string             `json:"source_id"`
	RelevanceScore   float64            `json:"relevance_score"`
	VelocityScore    float64            `json:"velocity_score"`
	RiskLevel        string             `json:"risk_level"`
	PlatformFit      map[string]float64 `json:"platform_fit"`
	SuggestedFormats []string           `json:"suggested_formats"`
}

// Run scores every discovery currently in status new, newest first, in
// batches. A malformed batch reply fails that whole batch and the run moves
// on; items the model omitted from a well-formed reply are skipped with a
// warning and stay new. A store write failure aborts the run.
func (a *Analyst) Run(ctx context.Context) (*Summary, error) {
	discoveries, err := a.store.ListDiscoveriesByStatus(ctx, pipeline.DiscoveryNew, 0)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for start := 0; start < len(discoveries); start += a.batchSize {
		end := start + a.batchSize
		if end > len(discoveries) {
			end = len(discoveries)
		}
		batch := discoveries[start:end]

		verdicts, err := a.scoreBatch(ctx, batch)
		if err != nil {
			summary.FailedBatches++
			a.logger.Warn("Analyst batch failed",
				slog.Int("batch_size", len(batch)), logfields.Error(err))
			continue
		}

		for _, d := range batch {
			v, ok := verdicts[d.SourceID]
			if !ok {
				summary.Missing++
				a.logger.Warn("Discovery missing from analyst reply",
					logfields.DiscoveryID(d.ID), logfields.Source(d.Source))
				continue
			}
			applyVerdict(d, v)
			if err := a.store.UpdateDiscoveryAnalysis(ctx, d); err != nil {
				return summary, err
			}
			summary.Analyzed++
		}
	}

	a.logger.Info("Analyst run complete",
		slog.Int("analyzed", summary.Analyzed),
		slog.Int("missing", summary.Missing),
		slog.Int("failed_batches", summary.FailedBatches))
	return summary, nil
}

func (a *Analyst) scoreBatch(ctx context.Context, batch []*pipeline.Discovery) (map[string]verdict, error) {
	resp, err := a.completer.Run(ctx, agentName, "score_batch", llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: batchPrompt(batch)},
		},
	})
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, err
	}
	var verdicts []verdict
	if err := json.Unmarshal(raw, &verdicts); err != nil {
		return nil, fmt.Errorf("decode analyst reply: %w", err)
	}

	out := make(map[string]verdict, len(verdicts))
	for _, v := range verdicts {
		out[v.SourceID] = v
	}
	return out, nil
}

// applyVerdict writes a clamped verdict onto the discovery.
func applyVerdict(d *pipeline.Discovery, v verdict) {
	rel := clamp01(v.RelevanceScore)
	vel := clamp01(v.VelocityScore)
	d.RelevanceScore = &rel
	d.VelocityScore = &vel

	lvl := normalizeRisk(v.RiskLevel)
	d.RiskLevel = &lvl

	fit := make(map[pipeline.Platform]float64, len(v.PlatformFit))
	for p, score := range v.PlatformFit {
		fit[pipeline.Platform(strings.ToLower(p))] = clamp01(score)
	}
	d.PlatformFit = fit

	var formats []pipeline.Format
	for _, f := range v.SuggestedFormats {
		formats = append(formats, pipeline.Format(strings.ToLower(f)))
	}
	d.SuggestedFormats = formats
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func normalizeRisk(s string) pipeline.RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return pipeline.RiskHigh
	case "medium", "med":
		return pipeline.RiskMedium
	default:
		return pipeline.RiskLow
	}
}

const systemPrompt = `You score content discoveries for a technical content pipeline.
For every item you receive, judge:
- relevance_score [0,1]: how valuable a take on this would be to a practitioner audience
- velocity_score [0,1]: how fast interest in this topic is moving right now
- risk_level: low | medium | high (legal, medical, financial or reputational exposure)
- platform_fit: map of twitter, linkedin, reddit, blog, youtube to [0,1]
- suggested_formats: subset of post, thread, article, short_video

Reply with ONLY a JSON array. One object per item, each carrying the item's
source_id verbatim plus the five fields above. No prose, no markdown fences.`

// batchPrompt renders one batch as a numbered item list.
func batchPrompt(batch []*pipeline.Discovery) string {
	var b strings.Builder
	b.WriteString("Score these discoveries:\n")
	for i, d := range batch {
		fmt.Fprintf(&b, "\n%d. source_id=%q source=%s score=%.0f\n   title: %s\n   url: %s\n",
			i+1, d.SourceID, d.Source, d.RawScore, d.Title, d.URL)
	}
	return b.String()
}
