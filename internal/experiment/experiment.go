// Package experiment runs two-arm skill experiments scored on 24h engagement
// of the publications each arm produced.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/logfields"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/store"
)

// Decision thresholds.
const (
	minSamplesPerArm = 10
	significanceP    = 0.05
)

// Store is the persistence surface the engine needs.
type Store interface {
	SaveExperiment(ctx context.Context, e *pipeline.Experiment) error
	UpdateExperiment(ctx context.Context, e *pipeline.Experiment) error
	GetRunningExperimentForSkill(ctx context.Context, skillName string) (*pipeline.Experiment, error)
	ListExperimentsByStatus(ctx context.Context, status pipeline.ExperimentStatus) ([]*pipeline.Experiment, error)
	List24hEngagementSince(ctx context.Context, since time.Time) ([]*store.VariantEngagement, error)
}

// Engine registers and evaluates experiments.
type Engine struct {
	store  Store
	method string
	logger *slog.Logger
	now    func() time.Time
}

// New builds an engine. method is "mannwhitney" or "welch"; anything else
// falls back to the default.
func New(st Store, method string, logger *slog.Logger) *Engine {
	if method != "welch" {
		method = "mannwhitney"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, method: method, logger: logger, now: time.Now}
}

// Register starts a new experiment for a skill. A skill runs at most one
// experiment at a time.
func (e *Engine) Register(ctx context.Context, skill, variantA, variantB, metricTarget string) (*pipeline.Experiment, error) {
	if skill == "" || variantA == "" || variantB == "" {
		return nil, pipeerrors.ValidationError("experiment needs a skill and two variant descriptions")
	}

	running, err := e.store.GetRunningExperimentForSkill(ctx, skill)
	if err != nil {
		return nil, err
	}
	if running != nil {
		return nil, pipeerrors.New(pipeerrors.CategoryValidation, pipeerrors.SeverityWarning,
			fmt.Sprintf("skill %q already has a running experiment %s", skill, running.ID))
	}
	if metricTarget == "" {
		metricTarget = "engagement_rate_24h"
	}

	exp := &pipeline.Experiment{
		ID:                  uuid.NewString(),
		SkillName:           skill,
		VariantADescription: variantA,
		VariantBDescription: variantB,
		MetricTarget:        metricTarget,
		Winner:              pipeline.WinnerNone,
		Status:              pipeline.ExperimentRunning,
		StartedAt:           e.now().UTC(),
	}
	if err := e.store.SaveExperiment(ctx, exp); err != nil {
		return nil, err
	}
	e.logger.Info("Experiment registered",
		slog.String("experiment_id", exp.ID), logfields.Skill(skill))
	return exp, nil
}

// Evaluate scores one running experiment. With fewer than the minimum
// observations per arm it leaves the experiment running and returns false.
// Otherwise it runs the configured significance test, persists the verdict
// and completes the experiment.
func (e *Engine) Evaluate(ctx context.Context, exp *pipeline.Experiment) (bool, error) {
	if exp.Status != pipeline.ExperimentRunning {
		return false, pipeerrors.ValidationError("experiment is not running")
	}

	armA, armB, err := e.observations(ctx, exp)
	if err != nil {
		return false, err
	}
	exp.SamplesA, exp.SamplesB = len(armA), len(armB)

	if len(armA) < minSamplesPerArm || len(armB) < minSamplesPerArm {
		e.logger.Debug("Experiment lacks samples",
			slog.String("experiment_id", exp.ID),
			slog.Int("samples_a", len(armA)),
			slog.Int("samples_b", len(armB)))
		return false, nil
	}

	var res testResult
	if e.method == "welch" {
		res = welch(armA, armB)
	} else {
		res = mannWhitney(armA, armB)
	}

	exp.VariantAScore = res.meanA
	exp.VariantBScore = res.meanB
	p, effect := res.p, res.effect
	exp.PValue = &p
	exp.EffectSize = &effect

	switch {
	case p > significanceP:
		exp.Winner = pipeline.WinnerNone
	case res.meanB > res.meanA:
		exp.Winner = pipeline.WinnerB
	default:
		exp.Winner = pipeline.WinnerA
	}

	now := e.now().UTC()
	exp.Status = pipeline.ExperimentCompleted
	exp.CompletedAt = &now
	exp.SampleSize = len(armA) + len(armB)

	if err := e.store.UpdateExperiment(ctx, exp); err != nil {
		return false, err
	}
	e.logger.Info("Experiment completed",
		slog.String("experiment_id", exp.ID),
		logfields.Skill(exp.SkillName),
		slog.String("winner", string(exp.Winner)),
		slog.Float64("p_value", p),
		slog.Float64("effect_size", effect))
	return true, nil
}

// EvaluateRunning evaluates every running experiment and returns the ones
// that completed this pass.
func (e *Engine) EvaluateRunning(ctx context.Context) ([]*pipeline.Experiment, error) {
	running, err := e.store.ListExperimentsByStatus(ctx, pipeline.ExperimentRunning)
	if err != nil {
		return nil, err
	}
	var completed []*pipeline.Experiment
	for _, exp := range running {
		done, err := e.Evaluate(ctx, exp)
		if err != nil {
			e.logger.Warn("Experiment evaluation failed",
				slog.String("experiment_id", exp.ID), logfields.Error(err))
			continue
		}
		if done {
			completed = append(completed, exp)
		}
	}
	return completed, nil
}

// observations splits 24h engagement rates since the experiment started by
// variant label, restricted to creations that used the skill under test.
func (e *Engine) observations(ctx context.Context, exp *pipeline.Experiment) (armA, armB []float64, err error) {
	rows, err := e.store.List24hEngagementSince(ctx, exp.StartedAt)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		if !usedSkill(row.SkillsUsed, exp.SkillName) {
			continue
		}
		switch row.VariantLabel {
		case "A":
			armA = append(armA, row.EngagementRate)
		case "B":
			armB = append(armB, row.EngagementRate)
		}
	}
	return armA, armB, nil
}

func usedSkill(skills []string, name string) bool {
	for _, s := range skills {
		if s == name {
			return true
		}
	}
	return false
}
