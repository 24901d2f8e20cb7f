// Package deliver hands personalized digests off to the notification
// subsystem over NATS. Rendering and sending the actual notifications
// happens downstream of the published subjects.
package deliver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/anthrax3/sentry/internal/digest"
	"github.com/anthrax3/sentry/internal/personalize"
)

// Publisher publishes one message per recipient to
// <subject_prefix>.<project_id>.<user_id>.
type Publisher struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *zap.Logger
}

// Message is the wire form of one recipient's digest.
type Message struct {
	DigestID    string         `json:"digest_id"`
	ProjectID   int64          `json:"project_id"`
	UserID      int64          `json:"user_id"`
	Groups      []MessageGroup `json:"groups"`
	PublishedAt time.Time      `json:"published_at"`
}

// MessageGroup carries one group's events in digest order.
type MessageGroup struct {
	GroupID int64          `json:"group_id"`
	Events  []MessageEvent `json:"events"`
}

// MessageEvent is the wire form of one event occurrence.
type MessageEvent struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename,omitempty"`
	URL       string    `json:"url,omitempty"`
	Message   string    `json:"message,omitempty"`
	RuleIDs   []int64   `json:"rule_ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublisher creates a digest publisher on an established connection.
func NewPublisher(nc *nats.Conn, subjectPrefix string, logger *zap.Logger) (*Publisher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if subjectPrefix == "" {
		return nil, fmt.Errorf("subject prefix cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		nc:            nc,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}, nil
}

// Publish sends each recipient's digest as its own message. A failure for
// one recipient does not stop the others; the first error is returned
// after all recipients were attempted.
func (p *Publisher) Publish(ctx context.Context, projectID int64, digests []personalize.UserDigest) error {
	now := time.Now().UTC()

	var errs []error
	for _, ud := range digests {
		if err := ctx.Err(); err != nil {
			return err
		}

		subject := fmt.Sprintf("%s.%d.%d", p.subjectPrefix, projectID, ud.UserID)
		data, err := json.Marshal(toMessage(projectID, ud, now))
		if err != nil {
			return fmt.Errorf("marshal digest message: %w", err)
		}

		if err := p.nc.Publish(subject, data); err != nil {
			p.logger.Warn("publishing digest message",
				zap.String("subject", subject),
				zap.Int64("user_id", ud.UserID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("publish to %s: %w", subject, err))
			continue
		}

		p.logger.Debug("published digest message",
			zap.String("subject", subject),
			zap.String("digest_id", ud.Digest.ID),
			zap.Int("records", ud.Digest.Len()))
	}

	// FlushWithContext requires a deadline.
	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(flushCtx); err != nil {
		errs = append(errs, fmt.Errorf("flushing nats connection: %w", err))
	}
	return errors.Join(errs...)
}

func toMessage(projectID int64, ud personalize.UserDigest, now time.Time) Message {
	msg := Message{
		DigestID:    ud.Digest.ID,
		ProjectID:   projectID,
		UserID:      ud.UserID,
		Groups:      make([]MessageGroup, len(ud.Digest.Groups)),
		PublishedAt: now,
	}
	for i, g := range ud.Digest.Groups {
		mg := MessageGroup{
			GroupID: g.GroupID,
			Events:  make([]MessageEvent, len(g.Records)),
		}
		for j, r := range g.Records {
			mg.Events[j] = toMessageEvent(r)
		}
		msg.Groups[i] = mg
	}
	return msg
}

func toMessageEvent(r digest.Record) MessageEvent {
	return MessageEvent{
		ID:        r.Event.ID,
		Filename:  r.Event.Filename,
		URL:       r.Event.URL,
		Message:   r.Event.Message,
		RuleIDs:   r.RuleIDs,
		Timestamp: r.Timestamp,
	}
}
