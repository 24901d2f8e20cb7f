package digest

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Event is a single error occurrence. The matchable attributes are the
// filename of the last stack-trace frame and the request URL; either may be
// empty when the event carries no such attribute. An event belongs to
// exactly one group and is immutable once created.
type Event struct {
	ID       string
	GroupID  int64
	Filename string
	URL      string
	Message  string
}

// Group is a deduplication bucket of events sharing a signature. The
// last-seen timestamp orders records within a digest.
type Group struct {
	ID        int64
	ProjectID int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// Record is the atomic unit carried inside a digest: an event, the ids of
// the alert rules that fired for it, and the group's last-seen time.
type Record struct {
	Event     Event
	RuleIDs   []int64
	Timestamp time.Time
}

// NewRecord stamps an event with its firing rules and the group's last-seen
// time.
func NewRecord(event Event, group Group, ruleIDs []int64) Record {
	return Record{
		Event:     event,
		RuleIDs:   ruleIDs,
		Timestamp: group.LastSeen,
	}
}

// GroupRecords holds the consecutive records of one group within a digest.
type GroupRecords struct {
	GroupID int64
	Records []Record
}

// Digest is an ordered, grouped batch of records slated for one
// notification cycle.
type Digest struct {
	ID        string
	ProjectID int64
	Groups    []GroupRecords
}

// SortRecords orders records most-recent-first by timestamp. The sort is
// stable: records with equal timestamps keep their input order.
func SortRecords(records []Record) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

// Build assembles a digest from already-sorted records, grouping consecutive
// records by group id without reordering within a group.
func Build(projectID int64, records []Record) *Digest {
	d := &Digest{
		ID:        uuid.NewString(),
		ProjectID: projectID,
	}
	for _, r := range records {
		n := len(d.Groups)
		if n > 0 && d.Groups[n-1].GroupID == r.Event.GroupID {
			d.Groups[n-1].Records = append(d.Groups[n-1].Records, r)
			continue
		}
		d.Groups = append(d.Groups, GroupRecords{
			GroupID: r.Event.GroupID,
			Records: []Record{r},
		})
	}
	return d
}

// Events flattens the digest back into its constituent events, in digest
// order, with duplicates removed.
func (d *Digest) Events() []Event {
	seen := make(map[string]struct{})
	var events []Event
	for _, g := range d.Groups {
		for _, r := range g.Records {
			if _, ok := seen[r.Event.ID]; ok {
				continue
			}
			seen[r.Event.ID] = struct{}{}
			events = append(events, r.Event)
		}
	}
	return events
}

// Filter rebuilds a digest containing exactly the records whose events the
// keep function accepts, preserving the grouping and ordering of the
// source. The result shares the source digest's id: a personalized view is
// still the same notification cycle.
func (d *Digest) Filter(keep func(Event) bool) *Digest {
	out := &Digest{
		ID:        d.ID,
		ProjectID: d.ProjectID,
	}
	for _, g := range d.Groups {
		var records []Record
		for _, r := range g.Records {
			if keep(r.Event) {
				records = append(records, r)
			}
		}
		if len(records) > 0 {
			out.Groups = append(out.Groups, GroupRecords{
				GroupID: g.GroupID,
				Records: records,
			})
		}
	}
	return out
}

// Len returns the total number of records in the digest.
func (d *Digest) Len() int {
	total := 0
	for _, g := range d.Groups {
		total += len(g.Records)
	}
	return total
}
