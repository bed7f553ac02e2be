package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/llm"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

type fakeStore struct {
	pending []*pipeline.Discovery
	updated []*pipeline.Discovery
	failOn  string
}

func (f *fakeStore) ListDiscoveriesByStatus(_ context.Context, status pipeline.DiscoveryStatus, _ int) ([]*pipeline.Discovery, error) {
	if status != pipeline.DiscoveryNew {
		return nil, nil
	}
	return f.pending, nil
}

func (f *fakeStore) UpdateDiscoveryAnalysis(_ context.Context, d *pipeline.Discovery) error {
	if f.failOn != "" && d.ID == f.failOn {
		return errors.New("disk full")
	}
	f.updated = append(f.updated, d)
	return nil
}

type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeCompleter) Run(_ context.Context, _, _ string, _ llm.Request) (*llm.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &llm.Response{Content: f.replies[i]}, nil
}

func discovery(id, sourceID string) *pipeline.Discovery {
	return &pipeline.Discovery{ID: id, Source: "hackernews", SourceID: sourceID,
		Title: "t-" + sourceID, URL: "https://x/" + sourceID, Status: pipeline.DiscoveryNew}
}

func verdictJSON(sourceID string, relevance float64) string {
	v := map[string]any{
		"source_id":         sourceID,
		"relevance_score":   relevance,
		"velocity_score":    0.5,
		"risk_level":        "low",
		"platform_fit":      map[string]float64{"twitter": 0.8, "blog": 0.4},
		"suggested_formats": []string{"thread", "post"},
	}
	data, _ := json.Marshal([]any{v})
	return string(data)
}

func TestRun_WellFormedReply_AnalyzesItems(t *testing.T) {
	st := &fakeStore{pending: []*pipeline.Discovery{discovery("d1", "s1")}}
	comp := &fakeCompleter{replies: []string{verdictJSON("s1", 0.9)}}

	summary, err := New(st, comp, nil, 0).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.Analyzed)
	require.Len(t, st.updated, 1)
	d := st.updated[0]
	require.NotNil(t, d.RelevanceScore)
	require.InDelta(t, 0.9, *d.RelevanceScore, 1e-9)
	require.Equal(t, pipeline.RiskLow, *d.RiskLevel)
	require.InDelta(t, 0.8, d.PlatformFit[pipeline.PlatformTwitter], 1e-9)
	require.Equal(t, []pipeline.Format{pipeline.FormatThread, pipeline.FormatPost}, d.SuggestedFormats)
}

func TestRun_ScoresClampedToUnitRange(t *testing.T) {
	st := &fakeStore{pending: []*pipeline.Discovery{discovery("d1", "s1")}}
	comp := &fakeCompleter{replies: []string{
		`[{"source_id":"s1","relevance_score":7.5,"velocity_score":-2,"risk_level":"HIGH","platform_fit":{"twitter":3.0}}]`,
	}}

	_, err := New(st, comp, nil, 0).Run(context.Background())

	require.NoError(t, err)
	d := st.updated[0]
	require.Equal(t, 1.0, *d.RelevanceScore)
	require.Equal(t, 0.0, *d.VelocityScore)
	require.Equal(t, pipeline.RiskHigh, *d.RiskLevel)
	require.Equal(t, 1.0, d.PlatformFit[pipeline.PlatformTwitter])
}

func TestRun_MalformedBatch_FailsWholeBatchOnly(t *testing.T) {
	st := &fakeStore{}
	for i := 0; i < 3; i++ {
		st.pending = append(st.pending, discovery(fmt.Sprintf("d%d", i), fmt.Sprintf("s%d", i)))
	}
	// Batch size 2: first batch replies garbage, second batch is fine.
	comp := &fakeCompleter{replies: []string{"sorry, I cannot do that", verdictJSON("s2", 0.7)}}

	summary, err := New(st, comp, nil, 2).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.FailedBatches)
	require.Equal(t, 1, summary.Analyzed)
	require.Len(t, st.updated, 1)
	require.Equal(t, "d2", st.updated[0].ID)
}

func TestRun_ItemMissingFromReply_SkippedWithoutError(t *testing.T) {
	st := &fakeStore{pending: []*pipeline.Discovery{discovery("d1", "s1"), discovery("d2", "s2")}}
	comp := &fakeCompleter{replies: []string{verdictJSON("s1", 0.6)}}

	summary, err := New(st, comp, nil, 0).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.Analyzed)
	require.Equal(t, 1, summary.Missing)
}

func TestRun_StoreWriteFailure_AbortsRun(t *testing.T) {
	st := &fakeStore{pending: []*pipeline.Discovery{discovery("d1", "s1")}, failOn: "d1"}
	comp := &fakeCompleter{replies: []string{verdictJSON("s1", 0.6)}}

	_, err := New(st, comp, nil, 0).Run(context.Background())

	require.Error(t, err)
}

func TestRun_ProviderError_CountsAsFailedBatch(t *testing.T) {
	st := &fakeStore{pending: []*pipeline.Discovery{discovery("d1", "s1")}}
	comp := &fakeCompleter{errs: []error{errors.New("timeout")}, replies: []string{""}}

	summary, err := New(st, comp, nil, 0).Run(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, summary.FailedBatches)
	require.Zero(t, summary.Analyzed)
}
