package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"yieldvault/internal/domain"
)

const (
	// StreamName holds committed ledger events for fan-out between instances
	StreamName    = "YIELDVAULT_EVENTS"
	subjectPrefix = "yieldvault.events."
	originHeader  = "Yieldvault-Origin"
)

// Subject returns the subject an event kind is published on
func Subject(kind string) string {
	return subjectPrefix + kind
}

// Deliverer receives events published by other instances
type Deliverer interface {
	Deliver(ctx context.Context, evt domain.Event) error
}

// Bus relays committed events between application instances over JetStream
type Bus struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	origin   string
	logger   *slog.Logger
	consumer jetstream.ConsumeContext
}

// Connect dials NATS and makes sure the event stream exists
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Bus, error) {
	logger = logger.With("component", "natsbus")
	nc, err := nats.Connect(url,
		nats.Name("yieldvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   jetstream.MemoryStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    time.Hour,
		Replicas:  1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create event stream: %w", err)
	}

	return &Bus{
		nc:     nc,
		js:     js,
		origin: uuid.NewString(),
		logger: logger,
	}, nil
}

// Deliver publishes evt for the other instances
func (b *Bus) Deliver(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(Subject(evt.Kind))
	msg.Data = data
	msg.Header.Set(originHeader, b.origin)

	if _, err := b.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Listen feeds events from other instances into local. Only events published
// after Listen starts are delivered; this instance's own events are skipped.
func (b *Bus) Listen(ctx context.Context, local Deliverer) error {
	consumer, err := b.js.OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subjectPrefix + ">"},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create event consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if msg.Headers().Get(originHeader) == b.origin {
			return
		}
		var evt domain.Event
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			b.logger.Warn("dropping malformed event", "subject", msg.Subject(), "error", err)
			return
		}
		if err := local.Deliver(ctx, evt); err != nil {
			b.logger.Warn("local delivery failed", "kind", evt.Kind, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("consume events: %w", err)
	}
	b.consumer = cc
	b.logger.Info("listening for remote events", "stream", StreamName)
	return nil
}

// Close stops consuming and drains the connection
func (b *Bus) Close() {
	if b.consumer != nil {
		b.consumer.Stop()
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}
