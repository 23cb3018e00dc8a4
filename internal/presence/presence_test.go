package presence

import (
	"testing"
	"time"

	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/fault"
)

func TestInitialState(t *testing.T) {
	tr := NewTracker(nil)
	if tr.Current("alice") != Offline {
		t.Errorf("initial state = %s, want offline", tr.Current("alice"))
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Offline, Online},
		{Online, Away},
		{Online, Offline},
		{Away, Online},
		{Away, Offline},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			tr := NewTracker(nil)
			walkTo(t, tr, "alice", tt.from)
			if _, err := tr.Transition("alice", tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if tr.Current("alice") != tt.to {
				t.Errorf("state = %s, want %s", tr.Current("alice"), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	tr := NewTracker(nil)
	_, err := tr.Transition("alice", Away)
	if err == nil {
		t.Fatal("Transition(offline -> away) should fail")
	}
	if !fault.Is(err, fault.KindValidation, fault.InvalidPresence) {
		t.Errorf("err = %v, want invalid_presence", err)
	}
	if tr.Current("alice") != Offline {
		t.Errorf("state = %s, want offline (unchanged)", tr.Current("alice"))
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	tr := NewTracker(b)
	walkTo(t, tr, "alice", Online)
	<-ch

	change, err := tr.Transition("alice", Online)
	if err != nil {
		t.Fatal(err)
	}
	if change.Changed() {
		t.Error("online -> online should not count as a change")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	tr := NewTracker(b)
	if _, err := tr.Transition("alice", Online); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.PresenceChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.PresenceChanged)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != Offline || change.To != Online || change.UserID != "alice" {
		t.Errorf("change = %+v", change)
	}
}

func TestCounts(t *testing.T) {
	tr := NewTracker(nil)
	walkTo(t, tr, "alice", Online)
	walkTo(t, tr, "bob", Away)
	walkTo(t, tr, "carol", Online)
	_, _ = tr.Transition("carol", Offline)

	counts := tr.Counts()
	if counts[Online] != 1 || counts[Away] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestParse(t *testing.T) {
	if st, err := Parse("away"); err != nil || st != Away {
		t.Errorf("Parse(away) = %s, %v", st, err)
	}
	if _, err := Parse("busy"); err == nil {
		t.Error("Parse(busy) should fail")
	}
}

// walkTo moves userID from offline to target.
func walkTo(t *testing.T, tr *Tracker, userID string, target State) {
	t.Helper()
	paths := map[State][]State{
		Offline: {},
		Online:  {Online},
		Away:    {Online, Away},
	}
	for _, s := range paths[target] {
		if _, err := tr.Transition(userID, s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
