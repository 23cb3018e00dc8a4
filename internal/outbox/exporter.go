package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
)

// Export results reported to metrics.
const (
	ResultSent   = "sent"
	ResultRetry  = "retry"
	ResultFailed = "failed"
)

const (
	defaultBatch       = 100
	defaultMaxAttempts = 5
)

// Exporter drains the event outbox into a watermill publisher.
type Exporter struct {
	db          *store.DB
	pub         message.Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
	interval    time.Duration
	batch       int
	maxAttempts int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExporter creates an exporter polling every interval.
func NewExporter(db *store.DB, pub message.Publisher, m *metrics.Metrics, logger *zap.Logger, interval time.Duration) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Exporter{
		db:          db,
		pub:         pub,
		metrics:     m,
		logger:      logger,
		interval:    interval,
		batch:       defaultBatch,
		maxAttempts: defaultMaxAttempts,
	}
}

// Start begins polling the outbox.
func (e *Exporter) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.loop(ctx)
}

// Stop stops the loop and waits for the current batch to finish.
func (e *Exporter) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (e *Exporter) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush exports one batch of queued events and returns how many were sent.
func (e *Exporter) Flush(ctx context.Context) int {
	pending, err := e.db.PendingEvents(ctx, e.batch)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("failed to read event outbox", zap.Error(err))
		}
		return 0
	}

	sent := 0
	for _, entry := range pending {
		if ctx.Err() != nil {
			return sent
		}
		msg := message.NewMessage(entry.EventID, entry.Payload)
		msg.Metadata.Set("kind", entry.Kind)

		if err := e.pub.Publish(entry.Topic, msg); err != nil {
			result := ResultRetry
			if entry.Attempts+1 >= e.maxAttempts {
				result = ResultFailed
			}
			e.logger.Warn("failed to export event",
				zap.Error(err),
				zap.String("event_id", entry.EventID),
				zap.String("kind", entry.Kind),
				zap.Int("attempt", entry.Attempts+1),
			)
			if err := e.db.MarkEventFailed(ctx, entry.ID, err.Error(), e.maxAttempts); err != nil {
				e.logger.Error("failed to mark event failed", zap.Error(err), zap.String("event_id", entry.EventID))
			}
			e.metrics.EventExported(result)
			continue
		}

		if err := e.db.MarkEventSent(ctx, entry.ID); err != nil {
			e.logger.Error("failed to mark event sent", zap.Error(err), zap.String("event_id", entry.EventID))
			continue
		}
		e.metrics.EventExported(ResultSent)
		sent++
	}
	if sent > 0 {
		e.logger.Debug("events exported", zap.Int("count", sent))
	}
	return sent
}
