// Package notify delivers best-effort moderator alerts when a submission is
// queued for review. Delivery failures are the caller's to log and swallow;
// a broken notifier must never fail a submission.
package notify

import (
	"context"
	"time"

	"orgmap.org/internal/moderation"
	"orgmap.org/internal/obs"
	"orgmap.org/internal/stream"
)

// LogNotifier writes a structured line per pending request. Useful as a
// default sink and in tests.
type LogNotifier struct{}

func (LogNotifier) NotifyModerators(ctx context.Context, rec *moderation.Record) error {
	obs.LogRequest(map[string]any{
		"level":        "info",
		"msg":          "update request pending review",
		"request_id":   rec.ID,
		"request_type": string(rec.Kind),
		"region_id":    rec.RegionID,
		"submitted_by": rec.SubmittedBy,
	})
	return nil
}

// StreamNotifier publishes submission events to the SSE stream so connected
// moderator dashboards update immediately.
type StreamNotifier struct {
	Stream *stream.Stream
}

func (n StreamNotifier) NotifyModerators(ctx context.Context, rec *moderation.Record) error {
	if n.Stream == nil {
		return nil
	}
	n.Stream.Publish(stream.ModerationEvent{
		RequestID:   rec.ID,
		RequestType: string(rec.Kind),
		Status:      string(rec.Status),
		RegionID:    rec.RegionID,
		SubmittedBy: rec.SubmittedBy,
		Timestamp:   time.Now().UTC(),
	})
	return nil
}

// Multi fans a notification out to several sinks; the first error wins but
// every sink still runs.
type Multi []moderation.Notifier

func (m Multi) NotifyModerators(ctx context.Context, rec *moderation.Record) error {
	var first error
	for _, n := range m {
		if err := n.NotifyModerators(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
