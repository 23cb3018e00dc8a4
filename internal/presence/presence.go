package presence

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/fault"
)

// State is an identity's presence.
type State string

const (
	Online  State = "online"
	Away    State = "away"
	Offline State = "offline"
)

// validTransitions defines allowed presence transitions.
var validTransitions = map[State][]State{
	Offline: {Online},
	Online:  {Away, Offline},
	Away:    {Online, Offline},
}

// Parse validates a client-supplied state.
func Parse(s string) (State, error) {
	switch st := State(s); st {
	case Online, Away, Offline:
		return st, nil
	default:
		return "", fault.Validation(fault.InvalidPresence)
	}
}

// Change is the payload for presence events.
type Change struct {
	UserID string    `json:"userId"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
}

// Changed reports whether the transition moved the state.
func (c Change) Changed() bool { return c.From != c.To }

// Tracker holds the presence of every live identity and enforces the
// transition table. Identities it has never seen are offline.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
	bus    *bus.Bus
}

// NewTracker creates a tracker that publishes presence.changed on b.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{states: make(map[string]State), bus: b}
}

// Current returns userID's state.
func (t *Tracker) Current(userID string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if st, ok := t.states[userID]; ok {
		return st
	}
	return Offline
}

// Transition moves userID to the given state. Moving to the current state
// is a no-op that publishes nothing.
func (t *Tracker) Transition(userID string, to State) (Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from, ok := t.states[userID]
	if !ok {
		from = Offline
	}
	change := Change{UserID: userID, From: from, To: to, At: time.Now()}
	if from == to {
		return change, nil
	}
	if !slices.Contains(validTransitions[from], to) {
		return change, fmt.Errorf("invalid presence transition from %s to %s: %w", from, to, fault.Validation(fault.InvalidPresence))
	}
	if to == Offline {
		delete(t.states, userID)
	} else {
		t.states[userID] = to
	}
	t.bus.Publish(bus.Event{Kind: bus.PresenceChanged, Timestamp: change.At, Payload: change})
	return change, nil
}

// Counts returns how many identities are in each non-offline state.
func (t *Tracker) Counts() map[State]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := map[State]int{Online: 0, Away: 0}
	for _, st := range t.states {
		out[st]++
	}
	return out
}
