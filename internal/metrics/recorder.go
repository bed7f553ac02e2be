package metrics

import "time"

// ResultLabel enumerates loop result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for pipeline loops and stages.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveLoopDuration(loop string, d time.Duration)
	IncLoopResult(loop string, result ResultLabel)
	AddDiscoveries(source string, n int)
	AddDuplicates(source string, n int)
	IncSourceResult(source string, success bool)
	IncCreations(platform string)
	IncApprovalOutcome(status string)
	IncPublishResult(platform string, success bool)
	IncMetricSnapshot(interval string)
	ObserveProviderCall(agent string, d time.Duration, success bool)
	AddProviderCost(agent string, usd float64)
	SetBudgetRatio(r float64)
	SetOperatingMode(mode string)
	SetSkillConfidence(skill string, confidence float64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveLoopDuration(string, time.Duration)        {}
func (NoopRecorder) IncLoopResult(string, ResultLabel)                {}
func (NoopRecorder) AddDiscoveries(string, int)                       {}
func (NoopRecorder) AddDuplicates(string, int)                        {}
func (NoopRecorder) IncSourceResult(string, bool)                     {}
func (NoopRecorder) IncCreations(string)                              {}
func (NoopRecorder) IncApprovalOutcome(string)                        {}
func (NoopRecorder) IncPublishResult(string, bool)                    {}
func (NoopRecorder) IncMetricSnapshot(string)                         {}
func (NoopRecorder) ObserveProviderCall(string, time.Duration, bool)  {}
func (NoopRecorder) AddProviderCost(string, float64)                  {}
func (NoopRecorder) SetBudgetRatio(float64)                           {}
func (NoopRecorder) SetOperatingMode(string)                          {}
func (NoopRecorder) SetSkillConfidence(string, float64)               {}
