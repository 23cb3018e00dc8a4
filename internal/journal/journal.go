package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
)

// Namespaces are the bus prefixes recorded in the event outbox.
var Namespaces = []string{"message.", "conversation.", "notification.", "presence.", "social."}

// Record is the JSON body written for every journaled event.
type Record struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	At      int64           `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Journal copies domain events from the bus into the event outbox so they
// can be exported after the fact.
type Journal struct {
	db     *store.DB
	bus    *bus.Bus
	topic  string
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a journal writing entries tagged with topic.
func New(db *store.DB, b *bus.Bus, topic string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{db: db, bus: b, topic: topic, logger: logger}
}

// Start subscribes to the journaled namespaces.
func (j *Journal) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})

	// One subscription over everything, filtered here, keeps events in
	// publish order across namespaces.
	ch, unsub := j.bus.Subscribe("", 256)

	go func() {
		defer close(j.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				j.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the journal and waits for the in-flight write.
func (j *Journal) Stop() {
	if j.cancel != nil {
		j.cancel()
		<-j.done
	}
}

func (j *Journal) handleEvent(ctx context.Context, evt bus.Event) {
	if !journaled(evt.Namespace()) {
		return
	}
	if err := j.Append(ctx, evt); err != nil {
		j.logger.Error("failed to journal event", zap.Error(err), zap.String("kind", evt.Kind))
	}
}

// Append writes one event to the outbox.
func (j *Journal) Append(ctx context.Context, evt bus.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", evt.Kind, err)
	}
	rec := Record{
		ID:      uuid.NewString(),
		Kind:    evt.Kind,
		At:      evt.Timestamp.UnixMilli(),
		Payload: payload,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return j.db.AppendEvent(ctx, &store.OutboxEntry{
		EventID: rec.ID,
		Topic:   j.topic,
		Kind:    evt.Kind,
		Payload: body,
	})
}

func journaled(ns string) bool {
	for _, n := range Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}
