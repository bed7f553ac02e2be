// Package events publishes pipeline lifecycle events to NATS JetStream. The
// emitter is optional: a nil *Emitter is a valid no-op, so callers never
// guard their emit calls.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName     = "CONTENTPIPE_EVENTS"
	publishTimeout = 5 * time.Second
)

// Event kinds, used as the subject suffix.
const (
	KindDiscoveryBatch = "discovery_batch"
	KindApproval       = "approval"
	KindPublication    = "publication"
	KindModeTransition = "mode_transition"
	KindWeeklyReview   = "weekly_review"
)

// DiscoveryBatchEvent summarizes one scout tick.
type DiscoveryBatchEvent struct {
	Found      int       `json:"found"`
	Duplicates int       `json:"duplicates"`
	Sources    int       `json:"sources"`
	Timestamp  time.Time `json:"timestamp"`
}

// ApprovalEvent records one approval decision.
type ApprovalEvent struct {
	CreationID   string    `json:"creation_id"`
	Status       string    `json:"status"`
	VariantGroup string    `json:"variant_group,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PublicationEvent summarizes one publish fan-out.
type PublicationEvent struct {
	Published   int       `json:"published"`
	Failed      int       `json:"failed"`
	NoPublisher int       `json:"no_publisher"`
	Timestamp   time.Time `json:"timestamp"`
}

// ModeTransitionEvent records an operating mode change.
type ModeTransitionEvent struct {
	Old       string    `json:"old"`
	New       string    `json:"new"`
	Ratio     float64   `json:"ratio"`
	Timestamp time.Time `json:"timestamp"`
}

// WeeklyReviewEvent carries the weekly review headline numbers.
type WeeklyReviewEvent struct {
	UnderReview        int       `json:"under_review"`
	RunningExperiments int       `json:"running_experiments"`
	PublicationsWeek   int       `json:"publications_week"`
	Timestamp          time.Time `json:"timestamp"`
}

// Emitter publishes JSON events on <prefix>.<kind>.
type Emitter struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
	logger *slog.Logger
}

// Connect dials NATS and ensures the events stream exists. An empty URL
// returns (nil, nil): events disabled.
func Connect(url, subjectPrefix string, logger *slog.Logger) (*Emitter, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if subjectPrefix == "" {
		subjectPrefix = "contentpipe.events"
	}
	subjectPrefix = strings.TrimSuffix(subjectPrefix, ".")

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        streamName,
		Description: "Content pipeline lifecycle events",
		Subjects:    []string{subjectPrefix + ".>"},
		MaxBytes:    100 * 1024 * 1024,
		MaxAge:      7 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure events stream: %w", err)
	}

	logger.Info("NATS events emitter connected",
		slog.String("url", url),
		slog.String("subject_prefix", subjectPrefix))
	return &Emitter{conn: conn, js: js, prefix: subjectPrefix, logger: logger}, nil
}

// Emit publishes one event. Failures are logged, never returned: event loss
// must not fail a pipeline operation.
func (e *Emitter) Emit(ctx context.Context, kind string, payload any) {
	if e == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("Event payload not serializable",
			slog.String("kind", kind), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := e.js.Publish(ctx, e.prefix+"."+kind, data); err != nil {
		e.logger.Warn("Event publish failed",
			slog.String("kind", kind), slog.Any("error", err))
		return
	}
	e.logger.Debug("Event published", slog.String("kind", kind))
}

// Close drains the connection. Safe on nil.
func (e *Emitter) Close() {
	if e == nil || e.conn == nil {
		return
	}
	e.conn.Close()
}
