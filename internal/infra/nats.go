package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes relayed events on NATS subjects named after the event type.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to NATS at url.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is empty")
	}
	nc, err := nats.Connect(url,
		nats.Name("seamless-outbox-relay"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("nats publisher initialized", "url", url)
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// Publish sends value on subject topic. The key travels as a header so
// subscribers can still group by player.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(topic)
	msg.Header.Set("Partition-Key", string(key))
	msg.Data = value
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a Publisher that writes events to the log.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	p.logger.Info("outbox event", "topic", topic, "key", string(key), "bytes", len(value))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// NewPublisher selects the relay publisher for cfg.EventBus.
func NewPublisher(cfg *Config, logger *slog.Logger) (Publisher, error) {
	switch cfg.EventBus {
	case "kafka":
		return NewKafkaProducer(cfg.KafkaBrokers, true, logger), nil
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, logger)
	default:
		return NewLogPublisher(logger), nil
	}
}
