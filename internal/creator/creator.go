// Package creator drafts platform content from analyzed discoveries. Every
// draft comes in a two-variant group for the approval queue; short-video
// drafts carry a deferred production descriptor instead of a rendered video.
package creator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/llm"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/media"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/quality"
)

// variantLabels are the arms drafted per (discovery, platform, format) group.
var variantLabels = []string{"A", "B"}

// Store is the persistence surface the creator needs.
type Store interface {
	ListAnalyzedDiscoveries(ctx context.Context, limit int) ([]*pipeline.Discovery, error)
	SaveCreation(ctx context.Context, c *pipeline.Creation) error
	UpdateDiscoveryStatus(ctx context.Context, id string, status pipeline.DiscoveryStatus) error
}

// Completer runs one ledger-tracked model call.
type Completer interface {
	Run(ctx context.Context, agent, task string, req llm.Request) (*llm.Response, error)
}

// Summary reports what one creation tick did.
type Summary struct {
	Drafted   int
	Groups    int
	Skipped   int
	Failed    int
	Platforms map[pipeline.Platform]int
}

// Creator turns analyzed discoveries into variant groups of drafts.
type Creator struct {
	store     Store
	completer Completer
	skills    SkillView
	avoid     AvoidSource
	images    media.ImageProvider
	gate      *quality.Gate
	assessor  *quality.Assessor
	recorder  metrics.Recorder
	logger    *slog.Logger

	brandVoice string
}

// New builds a creator. images and avoid may be nil; drafting then proceeds
// without illustrations or failure-pattern guidance.
func New(store Store, completer Completer, skills SkillView, avoid AvoidSource,
	images media.ImageProvider, assessor *quality.Assessor,
	recorder metrics.Recorder, logger *slog.Logger, brandVoice string) *Creator {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{
		store:      store,
		completer:  completer,
		skills:     skills,
		avoid:      avoid,
		images:     images,
		gate:       quality.NewGate(),
		assessor:   assessor,
		recorder:   recorder,
		logger:     logger,
		brandVoice: brandVoice,
	}
}

// draft is the JSON shape the model replies with.
type draft struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ImagePrompt string `json:"image_prompt"`
}

// Run drafts content for up to limit analyzed discoveries, best combined
// score first. A discovery with no platform clearing the fit bar is skipped
// outright. A discovery whose every draft attempt failed stays analyzed and
// is retried next tick; one with at least one saved draft moves to queued.
func (cr *Creator) Run(ctx context.Context, limit int) (*Summary, error) {
	summary := &Summary{Platforms: make(map[pipeline.Platform]int)}

	discoveries, err := cr.store.ListAnalyzedDiscoveries(ctx, limit)
	if err != nil {
		return summary, pipeerrors.Wrap(err, pipeerrors.CategoryStore, pipeerrors.SeverityError,
			"list analyzed discoveries")
	}

	for _, d := range discoveries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		platforms := TargetPlatforms(d.PlatformFit)
		if len(platforms) == 0 {
			if err := cr.store.UpdateDiscoveryStatus(ctx, d.ID, pipeline.DiscoverySkipped); err != nil {
				return summary, err
			}
			summary.Skipped++
			cr.logger.Debug("No platform fit, discovery skipped", logfields.DiscoveryID(d.ID))
			continue
		}

		saved := 0
		for _, platform := range platforms {
			format := ChooseFormat(platform, d.SuggestedFormats)
			n, err := cr.draftGroup(ctx, d, platform, format)
			saved += n
			if err != nil {
				summary.Failed++
				cr.logger.Warn("Variant group drafting incomplete",
					logfields.DiscoveryID(d.ID),
					logfields.Platform(string(platform)),
					logfields.Format(string(format)),
					logfields.Error(err))
				continue
			}
			summary.Groups++
			summary.Platforms[platform] += n
		}
		summary.Drafted += saved

		if saved == 0 {
			// Every call failed; leave the discovery analyzed for the
			// next tick instead of losing it.
			continue
		}
		if err := cr.store.UpdateDiscoveryStatus(ctx, d.ID, pipeline.DiscoveryQueued); err != nil {
			return summary, err
		}
	}

	cr.logger.Info("Creator tick complete",
		slog.Int("drafted", summary.Drafted),
		slog.Int("groups", summary.Groups),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed_groups", summary.Failed))
	return summary, nil
}

// draftGroup produces one variant group for a platform/format pair. Returns
// how many variants were saved; an error means at least one arm failed.
func (cr *Creator) draftGroup(ctx context.Context, d *pipeline.Discovery, platform pipeline.Platform, format pipeline.Format) (int, error) {
	group := uuid.NewString()[:8]
	system, skillsUsed := composeSystemPrompt(cr.brandVoice, cr.skills, cr.avoid, platform, format)

	var firstErr error
	saved := 0
	for _, label := range variantLabels {
		c, err := cr.draftVariant(ctx, d, platform, format, group, label, system, skillsUsed)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := cr.store.SaveCreation(ctx, c); err != nil {
			return saved, pipeerrors.Wrap(err, pipeerrors.CategoryStore, pipeerrors.SeverityError,
				"persist creation").WithContext("discovery_id", d.ID)
		}
		saved++
		cr.recorder.IncCreations(string(platform))
		cr.logger.Info("Draft created",
			logfields.CreationID(c.ID),
			logfields.DiscoveryID(d.ID),
			logfields.Platform(string(platform)),
			logfields.Format(string(format)),
			slog.String("variant", label),
			slog.String("approval", string(c.ApprovalStatus)))
	}
	return saved, firstErr
}

func (cr *Creator) draftVariant(ctx context.Context, d *pipeline.Discovery, platform pipeline.Platform,
	format pipeline.Format, group, label, system string, skillsUsed []string) (*pipeline.Creation, error) {

	resp, err := cr.completer.Run(ctx, "creator", "draft_"+string(platform), llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: "user", Content: draftPrompt(d, platform, format, label)}},
		Temperature: 0.8,
	})
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryProvider, pipeerrors.SeverityWarning,
			"draft reply is not JSON")
	}
	var dr draft
	if err := json.Unmarshal(raw, &dr); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryProvider, pipeerrors.SeverityWarning,
			"decode draft reply")
	}
	if strings.TrimSpace(dr.Title) == "" || strings.TrimSpace(dr.Body) == "" {
		return nil, pipeerrors.New(pipeerrors.CategoryProvider, pipeerrors.SeverityWarning,
			"draft reply missing title or body")
	}

	c := &pipeline.Creation{
		ID:           uuid.NewString(),
		DiscoveryID:  d.ID,
		Platform:     platform,
		Format:       format,
		Title:        strings.TrimSpace(dr.Title),
		Body:         strings.TrimSpace(dr.Body),
		SkillsUsed:   append([]string(nil), skillsUsed...),
		VariantGroup: group,
		VariantLabel: label,
		CreatedAt:    time.Now().UTC(),
	}

	if format == pipeline.FormatShortVideo {
		// Video is never produced at draft time; the descriptor waits
		// for a human to pick this variant.
		c.Video = videoSpecFor(c.Title, c.Body)
	}

	if cr.images != nil && dr.ImagePrompt != "" && format != pipeline.FormatShortVideo {
		asset, err := cr.images.GenerateImage(ctx, dr.ImagePrompt)
		if err != nil {
			// Image loss degrades the draft, never fails it.
			cr.logger.Warn("Image generation failed",
				logfields.DiscoveryID(d.ID), logfields.Error(err))
		} else {
			c.MediaURLs = append(c.MediaURLs, asset.URL)
		}
	}

	status := quality.Apply(cr.gate, cr.assessor, c)
	cr.recorder.IncApprovalOutcome(string(status))
	return c, nil
}
