package monitor

import "github.com/gdamore/tcell/v2"

// Action is a key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Bindings is an ordered set of actions.
type Bindings struct {
	actions []*Action
}

// Add registers an action. Earlier actions win on conflicts.
func (b *Bindings) Add(a *Action) {
	b.actions = append(b.actions, a)
}

// Hints returns the descriptions in registration order.
func (b *Bindings) Hints() []string {
	hints := make([]string, 0, len(b.actions))
	for _, a := range b.actions {
		if a.Description != "" {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// Handle runs the first matching action. Returns true if one matched.
func (b *Bindings) Handle(ev *tcell.EventKey) bool {
	for _, a := range b.actions {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
