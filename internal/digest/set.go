package digest

// EventSet is a set of events keyed by event id.
type EventSet map[string]struct{}

// NewEventSet builds a set from the given events.
func NewEventSet(events ...Event) EventSet {
	s := make(EventSet, len(events))
	for _, e := range events {
		s[e.ID] = struct{}{}
	}
	return s
}

// Add inserts an event into the set.
func (s EventSet) Add(e Event) {
	s[e.ID] = struct{}{}
}

// Has reports whether the event is in the set.
func (s EventSet) Has(e Event) bool {
	_, ok := s[e.ID]
	return ok
}

// Union inserts every member of other into the set.
func (s EventSet) Union(other EventSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Equal reports whether both sets contain the same event ids.
func (s EventSet) Equal(other EventSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}
