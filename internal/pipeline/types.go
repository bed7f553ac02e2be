// Package pipeline defines the entities that flow through the content
// pipeline and the enumerations governing their lifecycles. It has no
// dependencies on other internal packages so every layer can share it.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Platform identifies a publishing destination.
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
	PlatformReddit   Platform = "reddit"
	PlatformBlog     Platform = "blog"
	PlatformYouTube  Platform = "youtube"
)

// AllPlatforms lists every platform the pipeline can target.
func AllPlatforms() []Platform {
	return []Platform{PlatformTwitter, PlatformLinkedIn, PlatformReddit, PlatformBlog, PlatformYouTube}
}

// Format identifies the shape of a piece of content on a platform.
type Format string

const (
	FormatPost       Format = "post"
	FormatThread     Format = "thread"
	FormatArticle    Format = "article"
	FormatShortVideo Format = "short_video"
)

// DiscoveryStatus tracks a discovery through the pipeline.
type DiscoveryStatus string

const (
	DiscoveryNew       DiscoveryStatus = "new"
	DiscoveryAnalyzed  DiscoveryStatus = "analyzed"
	DiscoveryQueued    DiscoveryStatus = "queued"
	DiscoveryPublished DiscoveryStatus = "published"
	DiscoverySkipped   DiscoveryStatus = "skipped"
)

// ApprovalStatus is the creation state machine. Transitions are restricted:
// pending/pending_review may move to approved, rejected or quality_rejected;
// auto_approved, approved, rejected and quality_rejected are terminal for
// review purposes.
type ApprovalStatus string

const (
	ApprovalPending         ApprovalStatus = "pending"
	ApprovalPendingReview   ApprovalStatus = "pending_review"
	ApprovalAutoApproved    ApprovalStatus = "auto_approved"
	ApprovalApproved        ApprovalStatus = "approved"
	ApprovalQualityRejected ApprovalStatus = "quality_rejected"
	ApprovalRejected        ApprovalStatus = "rejected"
)

// RiskLevel buckets a creation's risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Outcome buckets a skill-use result derived from engagement.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// SkillStatus is the lifecycle state of a skill record.
type SkillStatus string

const (
	SkillActive      SkillStatus = "active"
	SkillStale       SkillStatus = "stale"
	SkillUnderReview SkillStatus = "under_review"
	SkillRetired     SkillStatus = "retired"
	SkillSuperseded  SkillStatus = "superseded"
)

// MetricInterval labels an engagement snapshot offset from publication time.
type MetricInterval string

const (
	Interval1h  MetricInterval = "1h"
	Interval6h  MetricInterval = "6h"
	Interval24h MetricInterval = "24h"
	Interval48h MetricInterval = "48h"
	Interval7d  MetricInterval = "7d"
)

// MetricIntervals returns every interval in ascending offset order. The
// collector relies on this ordering: a later interval is only attempted once
// all earlier rows exist.
func MetricIntervals() []MetricInterval {
	return []MetricInterval{Interval1h, Interval6h, Interval24h, Interval48h, Interval7d}
}

// Offset converts an interval label into its duration after publication.
func (i MetricInterval) Offset() time.Duration {
	switch i {
	case Interval1h:
		return time.Hour
	case Interval6h:
		return 6 * time.Hour
	case Interval24h:
		return 24 * time.Hour
	case Interval48h:
		return 48 * time.Hour
	case Interval7d:
		return 7 * 24 * time.Hour
	}
	return 0
}

// DiscoveryItem is the normalized unit every source adapter emits. RawData
// carries adapter-specific fields the core never interprets.
type DiscoveryItem struct {
	Source       string
	SourceID     string
	Title        string
	URL          string
	RawScore     float64
	RawData      map[string]any
	DiscoveredAt time.Time
}

// ContentHash derives the dedupe identity of an item: hex SHA-256 over
// "title|url". Two discoveries with the same hash are the same discovery.
func ContentHash(title, url string) string {
	sum := sha256.Sum256([]byte(title + "|" + url))
	return hex.EncodeToString(sum[:])
}

// Hash returns the item's content hash.
func (it DiscoveryItem) Hash() string {
	return ContentHash(it.Title, it.URL)
}

// Discovery is a persisted discovery item plus analysis results.
type Discovery struct {
	ID           string
	Source       string
	SourceID     string
	Title        string
	URL          string
	RawScore     float64
	RawData      map[string]any
	ContentHash  string
	Status       DiscoveryStatus
	DiscoveredAt time.Time

	// Set by the analyst.
	RelevanceScore   *float64
	VelocityScore    *float64
	RiskLevel        *RiskLevel
	PlatformFit      map[Platform]float64
	SuggestedFormats []Format
	AnalyzedAt       *time.Time
}

// CombinedScore orders analyzed discoveries for creation: relevance plus
// velocity, missing components counting as zero.
func (d *Discovery) CombinedScore() float64 {
	var s float64
	if d.RelevanceScore != nil {
		s += *d.RelevanceScore
	}
	if d.VelocityScore != nil {
		s += *d.VelocityScore
	}
	return s
}

// Creation is one drafted piece of content for one platform/format.
type Creation struct {
	ID            string
	DiscoveryID   string
	Platform      Platform
	Format        Format
	Title         string
	Body          string
	MediaURLs     []string
	SkillsUsed    []string
	RiskScore     float64
	RiskFlags     []string
	QualityScore  float64
	QualityIssues []string

	// Variant grouping: all creations sharing a group share
	// (discovery, platform, format) and at most one may be approved.
	VariantGroup string
	VariantLabel string

	ApprovalStatus ApprovalStatus

	// Deferred media descriptors, produced at creation time and executed
	// only after a human selects the variant.
	Video      *VideoSpec
	VideoURL   string
	VideoError string

	CreatedAt  time.Time
	ApprovedAt *time.Time
}

// HasDeferredMedia reports whether approval should enqueue a media task.
func (c *Creation) HasDeferredMedia() bool {
	return c.Video != nil && c.Video.Type != ""
}

// Publication records a successful push of a creation to a platform.
type Publication struct {
	ID             string
	CreationID     string
	Platform       Platform
	PlatformPostID string
	PlatformURL    string

	// Minutes between discovery and publication; nil when non-positive.
	ArbitrageWindowMinutes *int64

	// Lossy latest-engagement snapshot maintained by the engagement sweep.
	LatestEngagementRate *float64
	LatestEngagementAt   *time.Time

	PublishedAt time.Time
}

// Metric is one engagement snapshot for a publication at a fixed interval.
// Rows are append-only and unique per (publication, interval).
type Metric struct {
	ID              int64
	PublicationID   string
	Interval        MetricInterval
	Views           int64
	Likes           int64
	Comments        int64
	Shares          int64
	Clicks          int64
	FollowersGained int64
	EngagementRate  float64
	CollectedAt     time.Time
}

// Skill is a reusable prompt-composition pattern with a confidence weight.
// The SkillLibrary owns the authoritative in-memory copy; the store row
// mirrors it.
type Skill struct {
	Name            string
	Category        string
	Platform        string
	Confidence      float64
	Status          SkillStatus
	Version         int
	Content         string
	Tags            []string
	ChangeReason    string
	TotalUses       int
	SuccessCount    int
	FailureStreak   int
	LastUsedAt      *time.Time
	LastValidatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FilePath        string
}

// SkillMetric is one append-only skill outcome observation.
type SkillMetric struct {
	ID         int64
	SkillName  string
	Agent      string
	Task       string
	Outcome    Outcome
	Score      float64
	Context    string
	RecordedAt time.Time
}

// ExperimentStatus is the lifecycle of an A/B experiment.
type ExperimentStatus string

const (
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentCompleted ExperimentStatus = "completed"
	ExperimentCancelled ExperimentStatus = "cancelled"
)

// ExperimentWinner names the winning arm, or none.
type ExperimentWinner string

const (
	WinnerA    ExperimentWinner = "A"
	WinnerB    ExperimentWinner = "B"
	WinnerNone ExperimentWinner = "none"
)

// Experiment is a two-arm test of a skill variant against its baseline.
type Experiment struct {
	ID                  string
	SkillName           string
	VariantADescription string
	VariantBDescription string
	MetricTarget        string
	VariantAScore       float64
	VariantBScore       float64
	SampleSize          int
	SamplesA            int
	SamplesB            int
	PValue              *float64
	EffectSize          *float64
	Winner              ExperimentWinner
	Status              ExperimentStatus
	StartedAt           time.Time
	CompletedAt         *time.Time
}

// AgentRun is one cost-ledger row; every provider call records one.
type AgentRun struct {
	ID               int64
	Agent            string
	Task             string
	InputTokens      int64
	OutputTokens     int64
	EstimatedCostUSD float64
	DurationSeconds  float64
	Status           string
	Provider         string
	StartedAt        time.Time
	CompletedAt      *time.Time
}
