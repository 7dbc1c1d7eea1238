package meet

import (
	"sync"

	"github.com/linguameet/meet-lite/pkg/meet/protocol"
)

// Roster tracks the participant set for one session. At most one entry per
// participant identifier; departures do not remove entries, so the roster is
// "everyone seen this session" rather than "currently connected".
type Roster struct {
	mu    sync.Mutex
	byID  map[string]protocol.Participant
	order []string
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[string]protocol.Participant)}
}

// SetAll replaces the roster wholesale from a full-roster sync, deduplicated
// by identifier (first occurrence wins).
func (r *Roster) SetAll(participants []protocol.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]protocol.Participant, len(participants))
	r.order = r.order[:0]
	for _, p := range participants {
		if _, exists := r.byID[p.ID]; exists {
			continue
		}
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
}

// UpsertOnJoin inserts a participant only if the identifier is absent.
// Returns true when a new entry was added.
func (r *Roster) UpsertOnJoin(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return false
	}
	r.byID[id] = protocol.Participant{ID: id, Name: name}
	r.order = append(r.order, id)
	return true
}

// RecordDeparture acknowledges a participant_left event. The roster entry is
// deliberately kept; only the timeline notice marks the departure.
func (r *Roster) RecordDeparture(name string) {
	// No roster mutation.
	_ = name
}

// Participants returns the roster in insertion order.
func (r *Roster) Participants() []protocol.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Count returns the number of roster entries.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
