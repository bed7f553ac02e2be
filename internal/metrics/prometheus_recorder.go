package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	loopDuration     *prom.HistogramVec
	loopResults      *prom.CounterVec
	discoveries      *prom.CounterVec
	duplicates       *prom.CounterVec
	sourceResults    *prom.CounterVec
	creations        *prom.CounterVec
	approvalOutcomes *prom.CounterVec
	publishResults   *prom.CounterVec
	metricSnapshots  *prom.CounterVec
	providerDuration *prom.HistogramVec
	providerCost     *prom.CounterVec
	budgetRatio      prom.Gauge
	operatingMode    prom.Gauge
	skillConfidence  *prom.GaugeVec
}

// Numeric encoding of the operating mode gauge, most capable first.
var modeValues = map[string]float64{
	"full":    0,
	"reduced": 1,
	"minimal": 2,
	"paused":  3,
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.loopDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentpipe",
			Name:      "loop_duration_seconds",
			Help:      "Duration of individual scheduler loop bodies",
			Buckets:   prom.DefBuckets,
		}, []string{"loop"})
		pr.loopResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "loop_results_total",
			Help:      "Loop run counts by outcome",
		}, []string{"loop", "result"})
		pr.discoveries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "discoveries_total",
			Help:      "New discoveries stored, by source",
		}, []string{"source"})
		pr.duplicates = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "discovery_duplicates_total",
			Help:      "Discoveries dropped as duplicates, by source",
		}, []string{"source"})
		pr.sourceResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "source_fetch_results_total",
			Help:      "Source fetch results by success/failure",
		}, []string{"source", "result"})
		pr.creations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "creations_total",
			Help:      "Drafted creations by platform",
		}, []string{"platform"})
		pr.approvalOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "approval_outcomes_total",
			Help:      "Routing decisions by resulting approval status",
		}, []string{"status"})
		pr.publishResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "publish_results_total",
			Help:      "Publish attempts by platform and result",
		}, []string{"platform", "result"})
		pr.metricSnapshots = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "metric_snapshots_total",
			Help:      "Engagement snapshots collected, by interval",
		}, []string{"interval"})
		pr.providerDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentpipe",
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of model provider calls",
			Buckets:   prom.DefBuckets,
		}, []string{"agent", "result"})
		pr.providerCost = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentpipe",
			Name:      "provider_cost_usd_total",
			Help:      "Estimated provider spend in USD",
		}, []string{"agent"})
		pr.budgetRatio = prom.NewGauge(prom.GaugeOpts{
			Namespace: "contentpipe",
			Name:      "budget_ratio",
			Help:      "Today's spend divided by the daily limit",
		})
		pr.operatingMode = prom.NewGauge(prom.GaugeOpts{
			Namespace: "contentpipe",
			Name:      "operating_mode",
			Help:      "Current degradation mode (0=full 1=reduced 2=minimal 3=paused)",
		})
		pr.skillConfidence = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "contentpipe",
			Name:      "skill_confidence",
			Help:      "Current confidence per skill",
		}, []string{"skill"})
		reg.MustRegister(pr.loopDuration, pr.loopResults, pr.discoveries,
			pr.duplicates, pr.sourceResults, pr.creations, pr.approvalOutcomes,
			pr.publishResults, pr.metricSnapshots, pr.providerDuration,
			pr.providerCost, pr.budgetRatio, pr.operatingMode, pr.skillConfidence)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveLoopDuration(loop string, d time.Duration) {
	if p == nil || p.loopDuration == nil {
		return
	}
	p.loopDuration.WithLabelValues(loop).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncLoopResult(loop string, result ResultLabel) {
	if p == nil || p.loopResults == nil {
		return
	}
	p.loopResults.WithLabelValues(loop, string(result)).Inc()
}

func (p *PrometheusRecorder) AddDiscoveries(source string, n int) {
	if p == nil || p.discoveries == nil || n <= 0 {
		return
	}
	p.discoveries.WithLabelValues(source).Add(float64(n))
}

func (p *PrometheusRecorder) AddDuplicates(source string, n int) {
	if p == nil || p.duplicates == nil || n <= 0 {
		return
	}
	p.duplicates.WithLabelValues(source).Add(float64(n))
}

func (p *PrometheusRecorder) IncSourceResult(source string, success bool) {
	if p == nil || p.sourceResults == nil {
		return
	}
	p.sourceResults.WithLabelValues(source, resultString(success)).Inc()
}

func (p *PrometheusRecorder) IncCreations(platform string) {
	if p == nil || p.creations == nil {
		return
	}
	p.creations.WithLabelValues(platform).Inc()
}

func (p *PrometheusRecorder) IncApprovalOutcome(status string) {
	if p == nil || p.approvalOutcomes == nil {
		return
	}
	p.approvalOutcomes.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncPublishResult(platform string, success bool) {
	if p == nil || p.publishResults == nil {
		return
	}
	p.publishResults.WithLabelValues(platform, resultString(success)).Inc()
}

func (p *PrometheusRecorder) IncMetricSnapshot(interval string) {
	if p == nil || p.metricSnapshots == nil {
		return
	}
	p.metricSnapshots.WithLabelValues(interval).Inc()
}

func (p *PrometheusRecorder) ObserveProviderCall(agent string, d time.Duration, success bool) {
	if p == nil || p.providerDuration == nil {
		return
	}
	p.providerDuration.WithLabelValues(agent, resultString(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddProviderCost(agent string, usd float64) {
	if p == nil || p.providerCost == nil || usd <= 0 {
		return
	}
	p.providerCost.WithLabelValues(agent).Add(usd)
}

func (p *PrometheusRecorder) SetBudgetRatio(r float64) {
	if p == nil || p.budgetRatio == nil {
		return
	}
	p.budgetRatio.Set(r)
}

func (p *PrometheusRecorder) SetOperatingMode(mode string) {
	if p == nil || p.operatingMode == nil {
		return
	}
	if v, ok := modeValues[mode]; ok {
		p.operatingMode.Set(v)
	}
}

func (p *PrometheusRecorder) SetSkillConfidence(skill string, confidence float64) {
	if p == nil || p.skillConfidence == nil {
		return
	}
	p.skillConfidence.WithLabelValues(skill).Set(confidence)
}

func resultString(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
