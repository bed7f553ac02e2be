package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

func decentBody() string {
	return strings.Join([]string{
		"Why do 3 out of 4 migration projects stall in the first month?",
		"",
		"The pattern is always the same. Teams port the easy 80% fast.",
		"Then the remaining 20% eats the next two quarters.",
		"",
		"Three things that actually help:",
		"- Freeze the old system's write path early.",
		"- Migrate consumers before producers.",
		"- Measure drift daily, not at cutover.",
		"",
		"We cut our migration window from 9 months to 11 weeks this way.",
	}, "\n")
}

func TestGate_PlaceholderToken_ForcesRejection(t *testing.T) {
	g := NewGate()
	c := &pipeline.Creation{
		Platform: pipeline.PlatformTwitter,
		Title:    "A perfectly fine title about databases",
		Body:     "Great opening line here.\n\nTODO: write the rest of this post.",
	}

	a := g.Evaluate(c)

	require.True(t, a.Rejected)
	require.LessOrEqual(t, a.Score, 0.1)
	require.NotEmpty(t, a.Issues)
}

func TestGate_BracketPlaceholder_ForcesRejection(t *testing.T) {
	g := NewGate()
	c := &pipeline.Creation{
		Platform: pipeline.PlatformLinkedIn,
		Title:    "How we cut costs by 40 percent",
		Body:     "The trick was [insert detail here] and nothing else.",
	}

	require.True(t, g.Evaluate(c).Rejected)
}

func TestGate_SolidDraft_PassesWithoutWarning(t *testing.T) {
	g := NewGate()
	c := &pipeline.Creation{
		Platform: pipeline.PlatformTwitter,
		Title:    "Why 80 percent done means 20 percent started",
		Body:     decentBody(),
	}

	a := g.Evaluate(c)

	require.False(t, a.Rejected)
	require.False(t, a.Warning, "score was %.2f, subs %v", a.Score, a.SubScores)
	require.GreaterOrEqual(t, a.Score, 0.6)
}

func TestGate_EmptyBody_Rejects(t *testing.T) {
	g := NewGate()
	c := &pipeline.Creation{Platform: pipeline.PlatformBlog, Title: "t", Body: ""}

	a := g.Evaluate(c)

	require.True(t, a.Rejected)
}

func TestGate_LongFormStructure_RewardsHeadings(t *testing.T) {
	flat := strings.Repeat("Plain sentences with no structure at all. ", 60)
	structured := "# Overview\n\nShort intro paragraph.\n\n## Details\n\n- point one\n- point two\n\nClosing paragraph here.\n\nAnother paragraph.\n\nAnd one more for balance."

	p := profiles[pipeline.PlatformBlog]
	require.Greater(t, scoreStructure(structured, p), scoreStructure(flat, p))
}

func TestAssessor_HighRiskKeywords_BucketHigh(t *testing.T) {
	a := NewAssessor(nil)
	c := &pipeline.Creation{
		Title: "Guaranteed returns with this miracle cure",
		Body:  "This get rich quick method is backed by insider information.",
	}

	r := a.Assess(c)

	require.Equal(t, pipeline.RiskHigh, r.Level)
	require.GreaterOrEqual(t, r.Score, 0.60)
	require.NotEmpty(t, r.Flags)
}

func TestAssessor_UnverifiedClaim_AddsPoints(t *testing.T) {
	a := NewAssessor(nil)
	clean := a.Assess(&pipeline.Creation{Body: "We measured it ourselves and publish the data."})
	claimy := a.Assess(&pipeline.Creation{Body: "Studies show this works. Experts agree it always does."})

	require.Greater(t, claimy.Score, clean.Score)
	require.Equal(t, pipeline.RiskLow, clean.Level)
}

func TestAssessor_CompetitorMention_Flagged(t *testing.T) {
	a := NewAssessor([]string{"AcmeCorp"})
	r := a.Assess(&pipeline.Creation{Body: "Unlike acmecorp we ship weekly."})

	require.Contains(t, r.Flags, "competitor_mention: AcmeCorp")
}

func TestAssessor_ScoreClampedToOne(t *testing.T) {
	a := NewAssessor(nil)
	body := strings.Join(highRiskKeywords, " ") + " " + strings.Join(mediumRiskKeywords, " ")
	r := a.Assess(&pipeline.Creation{Body: body})

	require.Equal(t, 1.0, r.Score)
	require.Equal(t, pipeline.RiskHigh, r.Level)
}

func TestRoute_PrecedenceOrder(t *testing.T) {
	cases := []struct {
		name   string
		q      Assessment
		r      RiskResult
		group  bool
		expect pipeline.ApprovalStatus
	}{
		{"quality rejection wins over everything", Assessment{Rejected: true}, RiskResult{Level: pipeline.RiskHigh}, true, pipeline.ApprovalQualityRejected},
		{"high risk rejects", Assessment{}, RiskResult{Level: pipeline.RiskHigh}, false, pipeline.ApprovalRejected},
		{"variant group forces review", Assessment{}, RiskResult{Level: pipeline.RiskLow}, true, pipeline.ApprovalPendingReview},
		{"clean low risk auto approves", Assessment{}, RiskResult{Level: pipeline.RiskLow}, false, pipeline.ApprovalAutoApproved},
		{"low risk with warning reviews", Assessment{Warning: true}, RiskResult{Level: pipeline.RiskLow}, false, pipeline.ApprovalPendingReview},
		{"medium risk pends", Assessment{}, RiskResult{Level: pipeline.RiskMedium}, false, pipeline.ApprovalPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Route(tc.q, tc.r, tc.group))
		})
	}
}

func TestApply_WritesVerdictsOntoCreation(t *testing.T) {
	c := &pipeline.Creation{
		Platform:     pipeline.PlatformTwitter,
		Title:        "Why 80 percent done means 20 percent started",
		Body:         decentBody(),
		VariantGroup: "grp1",
	}

	status := Apply(NewGate(), NewAssessor(nil), c)

	require.Equal(t, pipeline.ApprovalPendingReview, status)
	require.Equal(t, status, c.ApprovalStatus)
	require.Greater(t, c.QualityScore, 0.0)
	require.Zero(t, c.RiskScore)
	require.Empty(t, c.RiskFlags)
}
