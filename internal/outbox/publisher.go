package outbox

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/matheus3301/hive/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names accepted in [events].
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Publisher is a watermill publisher plus whatever it owns.
type Publisher struct {
	message.Publisher
	// Memory is set for the in-process backend so local subscribers can
	// tap the exported stream.
	Memory *gochannel.GoChannel
	redis  *redis.Client
}

// Close closes the publisher and its redis client, if any.
func (p *Publisher) Close() error {
	err := p.Publisher.Close()
	if p.redis != nil {
		if cerr := p.redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NewPublisher builds the publisher for cfg.Backend. It returns nil, nil for
// the "none" backend.
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (*Publisher, error) {
	wl := NewZapAdapter(logger)
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendMemory, "":
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wl)
		return &Publisher{Publisher: ch, Memory: ch}, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, wl)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis stream publisher: %w", err)
		}
		return &Publisher{Publisher: pub, redis: client}, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// ZapAdapter routes watermill logs into zap.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter wraps logger; nil yields a no-op adapter.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{logger: logger.Named("watermill")}
}

func (a *ZapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (a *ZapAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, zapFields(fields)...)
}

func (a *ZapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, zapFields(fields)...)
}

// Trace is folded into debug; zap has no lower level.
func (a *ZapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, zapFields(fields)...)
}

func (a *ZapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &ZapAdapter{logger: a.logger.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
