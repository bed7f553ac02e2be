package metrics

import (
	"testing"
	"time"
)

// The noop recorder and a nil Prometheus recorder must both be safe to call:
// loops inject a Recorder unconditionally and never guard call sites.
func TestNoopRecorder_AllMethodsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveLoopDuration("scout", time.Second)
	r.IncLoopResult("scout", ResultSuccess)
	r.AddDiscoveries("hackernews", 3)
	r.AddDuplicates("hackernews", 1)
	r.IncSourceResult("hackernews", true)
	r.IncCreations("twitter")
	r.IncApprovalOutcome("auto_approved")
	r.IncPublishResult("blog", false)
	r.IncMetricSnapshot("1h")
	r.ObserveProviderCall("analyst", 2*time.Second, true)
	r.AddProviderCost("analyst", 0.004)
	r.SetBudgetRatio(0.42)
	r.SetOperatingMode("reduced")
	r.SetSkillConfidence("hook-question", 0.7)
}

func TestPrometheusRecorder_NilReceiverSafe(t *testing.T) {
	var p *PrometheusRecorder
	p.ObserveLoopDuration("scout", time.Second)
	p.IncLoopResult("scout", ResultFailed)
	p.AddDiscoveries("reddit", 2)
	p.SetBudgetRatio(0.9)
	p.SetOperatingMode("paused")
}
