package fanout

import (
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/registry"
	"go.uber.org/zap"
)

// Targets selects the connections a frame goes to. Users are resolved
// through the registry, Rooms through the room table. Exclude drops
// identities, ExcludeTransport drops one connection.
type Targets struct {
	Users            []string
	Rooms            []string
	Exclude          []string
	ExcludeTransport string
}

// Failure is one connection that could not take the frame.
type Failure struct {
	UserID      string
	TransportID string
	Err         error
}

// Report summarises a delivery.
type Report struct {
	Delivered []string // transport ids, in delivery order
	Failures  []Failure
}

// DeliveredTo reports whether the frame reached the given transport.
func (r Report) DeliveredTo(transportID string) bool {
	for _, id := range r.Delivered {
		if id == transportID {
			return true
		}
	}
	return false
}

// Fanout pushes frames to live connections. Delivery is best effort and
// isolated per connection: a failing target is logged and counted and the
// rest still receive the frame.
type Fanout struct {
	conns   *registry.Registry
	rooms   *registry.Rooms
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Fanout over the given registry and rooms.
func New(conns *registry.Registry, rooms *registry.Rooms, m *metrics.Metrics, logger *zap.Logger) *Fanout {
	return &Fanout{conns: conns, rooms: rooms, metrics: m, logger: logger}
}

// Deliver sends frame to users first, in the given order, then to each room's
// members. Every transport receives the frame at most once.
func (f *Fanout) Deliver(frame protocol.Frame, to Targets) Report {
	excluded := make(map[string]struct{}, len(to.Exclude))
	for _, id := range to.Exclude {
		excluded[id] = struct{}{}
	}
	seen := make(map[string]struct{})
	if to.ExcludeTransport != "" {
		seen[to.ExcludeTransport] = struct{}{}
	}

	var rep Report
	push := func(t registry.Transport) {
		if _, skip := excluded[t.UserID()]; skip {
			return
		}
		if _, dup := seen[t.ID()]; dup {
			return
		}
		seen[t.ID()] = struct{}{}
		f.send(frame, t, &rep)
	}

	for _, userID := range to.Users {
		if t, ok := f.conns.Lookup(userID); ok {
			push(t)
		}
	}
	for _, room := range to.Rooms {
		for _, t := range f.rooms.Members(room) {
			push(t)
		}
	}
	return rep
}

// Broadcast sends frame to every live connection except exceptUser's.
func (f *Fanout) Broadcast(frame protocol.Frame, exceptUser string) Report {
	var rep Report
	for _, t := range f.conns.Transports() {
		if t.UserID() == exceptUser {
			continue
		}
		f.send(frame, t, &rep)
	}
	return rep
}

// To sends frame to a single transport, reporting a failure as a
// DeliveryError.
func (f *Fanout) To(t registry.Transport, frame protocol.Frame) error {
	var rep Report
	f.send(frame, t, &rep)
	if len(rep.Failures) > 0 {
		return rep.Failures[0].Err
	}
	return nil
}

func (f *Fanout) send(frame protocol.Frame, t registry.Transport, rep *Report) {
	if err := t.Send(frame); err != nil {
		derr := fault.Delivery(t.UserID(), err)
		rep.Failures = append(rep.Failures, Failure{UserID: t.UserID(), TransportID: t.ID(), Err: derr})
		f.metrics.DeliveryFailed(frame.Event)
		f.logger.Warn("delivery failed",
			zap.String("event", frame.Event),
			zap.String("user_id", t.UserID()),
			zap.String("transport_id", t.ID()),
			zap.Error(err))
		return
	}
	rep.Delivered = append(rep.Delivered, t.ID())
}
