// Package registrytest provides an in-memory Transport for tests.
package registrytest

import (
	"errors"
	"sync"

	"github.com/matheus3301/hive/internal/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("registrytest: transport closed")

// Transport records every frame it is sent.
type Transport struct {
	id, user string

	mu      sync.Mutex
	frames  []protocol.Frame
	closed  bool
	reason  string
	sendErr error
}

// New creates a recording transport for user.
func New(id, user string) *Transport {
	return &Transport{id: id, user: user}
}

func (t *Transport) ID() string     { return t.id }
func (t *Transport) UserID() string { return t.user }

func (t *Transport) Send(f protocol.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *Transport) Close(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.reason = reason
	}
}

// FailWith makes every later Send return err.
func (t *Transport) FailWith(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// Frames returns a copy of the recorded frames.
func (t *Transport) Frames() []protocol.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Frame(nil), t.frames...)
}

// Events returns the recorded frames filtered to event.
func (t *Transport) Events(event string) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range t.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Closed reports whether Close was called and with what reason.
func (t *Transport) Closed() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.reason
}
