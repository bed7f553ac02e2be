package quality

import (
	"fmt"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// Per-hit risk weights. The sum is clamped to 1.
const (
	highKeywordWeight   = 0.30
	mediumKeywordWeight = 0.10
	unverifiedWeight    = 0.15
	competitorWeight    = 0.05
)

// Bucket boundaries.
const (
	highRiskAt   = 0.60
	mediumRiskAt = 0.25
)

// Keyword classes. Matching is case-insensitive on whole phrases.
var highRiskKeywords = []string{
	"guaranteed returns",
	"financial advice",
	"cure",
	"miracle",
	"get rich quick",
	"insider information",
	"lawsuit",
	"class action",
	"scam",
	"pump and dump",
	"medical breakthrough",
}

var mediumRiskKeywords = []string{
	"investment",
	"crypto",
	"diagnosis",
	"legal",
	"controversial",
	"exposed",
	"shocking",
	"banned",
	"leaked",
}

// Unverified-claim shapes: assertions of consensus or proof with no source.
var unverifiedClaimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bstudies (show|prove|confirm)\b`),
	regexp.MustCompile(`(?i)\bexperts (say|agree|confirm)\b`),
	regexp.MustCompile(`(?i)\beveryone knows\b`),
	regexp.MustCompile(`(?i)\bit('s| is) (proven|a fact)\b`),
	regexp.MustCompile(`(?i)\bscientists (found|discovered)\b`),
	regexp.MustCompile(`(?i)\b(100|ninety.?nine)\s?% (of|certain|sure)\b`),
}

// RiskResult is the assessor's verdict on one draft.
type RiskResult struct {
	Score float64
	Level pipeline.RiskLevel
	Flags []string
}

// Assessor scans drafts for risky phrasing. The competitor list comes from
// configuration; everything else is built in.
type Assessor struct {
	competitors []string
}

// NewAssessor builds a risk assessor with an optional competitor list.
func NewAssessor(competitors []string) *Assessor {
	return &Assessor{competitors: competitors}
}

// Assess scans title plus body and accumulates weighted hits into a clamped
// score with a bucketed level. Every hit is recorded as a flag so reviewers
// can see what fired.
func (a *Assessor) Assess(c *pipeline.Creation) RiskResult {
	haystack := strings.ToLower(c.Title + "\n" + c.Body)

	var res RiskResult
	for _, kw := range highRiskKeywords {
		if strings.Contains(haystack, kw) {
			res.Score += highKeywordWeight
			res.Flags = append(res.Flags, "high_risk_keyword: "+kw)
		}
	}
	for _, kw := range mediumRiskKeywords {
		if strings.Contains(haystack, kw) {
			res.Score += mediumKeywordWeight
			res.Flags = append(res.Flags, "medium_risk_keyword: "+kw)
		}
	}
	for _, re := range unverifiedClaimPatterns {
		if m := re.FindString(haystack); m != "" {
			res.Score += unverifiedWeight
			res.Flags = append(res.Flags, "unverified_claim: "+m)
		}
	}
	for _, comp := range a.competitors {
		if comp == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(comp)) {
			res.Score += competitorWeight
			res.Flags = append(res.Flags, "competitor_mention: "+comp)
		}
	}

	if res.Score > 1 {
		res.Score = 1
	}
	switch {
	case res.Score >= highRiskAt:
		res.Level = pipeline.RiskHigh
	case res.Score >= mediumRiskAt:
		res.Level = pipeline.RiskMedium
	default:
		res.Level = pipeline.RiskLow
	}
	return res
}

// Route decides the draft's approval status from the gate and risk verdicts,
// in strict precedence order. Grouped variants always wait for a human.
func Route(q Assessment, r RiskResult, hasVariantGroup bool) pipeline.ApprovalStatus {
	switch {
	case q.Rejected:
		return pipeline.ApprovalQualityRejected
	case r.Level == pipeline.RiskHigh:
		return pipeline.ApprovalRejected
	case hasVariantGroup:
		return pipeline.ApprovalPendingReview
	case r.Level == pipeline.RiskLow && !q.Warning:
		return pipeline.ApprovalAutoApproved
	case r.Level == pipeline.RiskLow && q.Warning:
		return pipeline.ApprovalPendingReview
	default:
		return pipeline.ApprovalPending
	}
}

// Apply runs gate, assessor and routing against a draft and writes the
// verdicts onto it, returning the routed status for convenience.
func Apply(gate *Gate, assessor *Assessor, c *pipeline.Creation) pipeline.ApprovalStatus {
	q := gate.Evaluate(c)
	r := assessor.Assess(c)

	c.QualityScore = q.Score
	c.QualityIssues = q.Issues
	c.RiskScore = r.Score
	c.RiskFlags = r.Flags
	c.ApprovalStatus = Route(q, r, c.VariantGroup != "")
	return c.ApprovalStatus
}

// String renders the result for logs.
func (r RiskResult) String() string {
	return fmt.Sprintf("%s (%.2f, %d flags)", r.Level, r.Score, len(r.Flags))
}
