package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusRecorder_RegistersAndRecords(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveLoopDuration("scout", 250*time.Millisecond)
	pr.IncLoopResult("scout", ResultSuccess)
	pr.AddDiscoveries("hackernews", 5)
	pr.AddDuplicates("hackernews", 2)
	pr.IncPublishResult("twitter", true)
	pr.ObserveProviderCall("creator", time.Second, true)
	pr.AddProviderCost("creator", 0.012)
	pr.SetBudgetRatio(0.71)
	pr.SetOperatingMode("reduced")
	pr.SetSkillConfidence("hook-question", 0.68)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["contentpipe_loop_duration_seconds"])
	require.True(t, names["contentpipe_discoveries_total"])
	require.True(t, names["contentpipe_budget_ratio"])
	require.True(t, names["contentpipe_operating_mode"])
}
