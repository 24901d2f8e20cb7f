package http

import (
	"time"

	"github.com/anthrax3/sentry/internal/digest"
)

// EventPayload is the wire form of an event.
type EventPayload struct {
	ID       string `json:"id"`
	GroupID  int64  `json:"group_id"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
	Message  string `json:"message,omitempty"`
}

// RecordPayload is the wire form of a digest record.
type RecordPayload struct {
	Event     EventPayload `json:"event"`
	RuleIDs   []int64      `json:"rule_ids,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// GroupPayload is the wire form of one group's consecutive records.
type GroupPayload struct {
	GroupID int64           `json:"group_id"`
	Records []RecordPayload `json:"records"`
}

// DigestPayload is the wire form of a digest.
type DigestPayload struct {
	ID        string         `json:"id"`
	ProjectID int64          `json:"project_id"`
	Groups    []GroupPayload `json:"groups"`
}

// UserDigestPayload pairs a recipient with their personalized digest.
type UserDigestPayload struct {
	UserID int64         `json:"user_id"`
	Digest DigestPayload `json:"digest"`
}

// PersonalizeRequest is the request body for
// POST /api/v1/projects/:project_id/digests/personalize.
// UserIDs is optional; the project's active members are used when empty.
type PersonalizeRequest struct {
	Records []RecordPayload `json:"records"`
	UserIDs []int64         `json:"user_ids,omitempty"`
}

// PersonalizeResponse is the response body for
// POST /api/v1/projects/:project_id/digests/personalize.
type PersonalizeResponse struct {
	DigestID string              `json:"digest_id"`
	Digests  []UserDigestPayload `json:"digests"`
}

func recordFromPayload(p RecordPayload) digest.Record {
	return digest.Record{
		Event: digest.Event{
			ID:       p.Event.ID,
			GroupID:  p.Event.GroupID,
			Filename: p.Event.Filename,
			URL:      p.Event.URL,
			Message:  p.Event.Message,
		},
		RuleIDs:   p.RuleIDs,
		Timestamp: p.Timestamp,
	}
}

func recordToPayload(r digest.Record) RecordPayload {
	return RecordPayload{
		Event: EventPayload{
			ID:       r.Event.ID,
			GroupID:  r.Event.GroupID,
			Filename: r.Event.Filename,
			URL:      r.Event.URL,
			Message:  r.Event.Message,
		},
		RuleIDs:   r.RuleIDs,
		Timestamp: r.Timestamp,
	}
}

func digestToPayload(d *digest.Digest) DigestPayload {
	out := DigestPayload{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		Groups:    make([]GroupPayload, len(d.Groups)),
	}
	for i, g := range d.Groups {
		gp := GroupPayload{
			GroupID: g.GroupID,
			Records: make([]RecordPayload, len(g.Records)),
		}
		for j, r := range g.Records {
			gp.Records[j] = recordToPayload(r)
		}
		out.Groups[i] = gp
	}
	return out
}
