package llm

import (
	"context"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// RunStore is the slice of the store the runner needs.
type RunStore interface {
	SaveAgentRun(ctx context.Context, r *pipeline.AgentRun) error
}

// Pricing converts token usage into estimated spend.
type Pricing struct {
	InPer1K  float64
	OutPer1K float64
}

// Cost estimates the USD spend for a usage pair.
func (p Pricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1000*p.InPer1K + float64(outputTokens)/1000*p.OutPer1K
}

// Runner wraps a Client so every call lands in the cost ledger, successful or
// not. Agents never call the client directly.
type Runner struct {
	client   Client
	store    RunStore
	recorder metrics.Recorder
	pricing  Pricing
	timeout  time.Duration
	provider string
}

// NewRunner builds a ledger-keeping runner around client.
func NewRunner(client Client, store RunStore, recorder metrics.Recorder, pricing Pricing, timeout time.Duration, provider string) *Runner {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Runner{
		client:   client,
		store:    store,
		recorder: recorder,
		pricing:  pricing,
		timeout:  timeout,
		provider: provider,
	}
}

// Run executes one completion under the configured timeout and records an
// AgentRun row. Ledger writes happen even when the call fails, so spend is
// never undercounted.
func (r *Runner) Run(ctx context.Context, agent, task string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now().UTC()
	resp, err := r.client.Complete(ctx, req)
	completed := time.Now().UTC()

	run := &pipeline.AgentRun{
		Agent:           agent,
		Task:            task,
		DurationSeconds: completed.Sub(started).Seconds(),
		Provider:        r.provider,
		StartedAt:       started,
		CompletedAt:     &completed,
	}
	if err != nil {
		run.Status = "failed"
	} else {
		run.Status = "success"
		run.InputTokens = resp.InputTokens
		run.OutputTokens = resp.OutputTokens
		run.EstimatedCostUSD = r.pricing.Cost(resp.InputTokens, resp.OutputTokens)
	}

	if saveErr := r.store.SaveAgentRun(ctx, run); saveErr != nil && err == nil {
		err = saveErr
	}

	r.recorder.ObserveProviderCall(agent, completed.Sub(started), err == nil)
	r.recorder.AddProviderCost(agent, run.EstimatedCostUSD)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RecordFlatCost appends a ledger row for a non-token provider call, such as
// image generation priced per asset.
func (r *Runner) RecordFlatCost(ctx context.Context, agent, task string, costUSD float64, duration time.Duration, success bool) error {
	started := time.Now().UTC().Add(-duration)
	completed := started.Add(duration)
	status := "success"
	if !success {
		status = "failed"
		costUSD = 0
	}
	run := &pipeline.AgentRun{
		Agent:            agent,
		Task:             task,
		EstimatedCostUSD: costUSD,
		DurationSeconds:  duration.Seconds(),
		Status:           status,
		Provider:         r.provider,
		StartedAt:        started,
		CompletedAt:      &completed,
	}
	if err := r.store.SaveAgentRun(ctx, run); err != nil {
		return err
	}
	r.recorder.AddProviderCost(agent, costUSD)
	return nil
}
