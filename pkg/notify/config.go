package notify

import (
	"fmt"

	"github.com/84hero/launchpad-indexer/internal/webhook"
	"github.com/84hero/launchpad-indexer/pkg/config"
	"github.com/ethereum/go-ethereum/log"
)

// FromConfig builds a Broadcaster with every publisher enabled in cfg.
// On error the publishers created so far are closed.
func FromConfig(cfg config.NotifyConfig) (*Broadcaster, error) {
	b := NewBroadcaster()

	fail := func(name string, err error) (*Broadcaster, error) {
		_ = b.Close()
		return nil, fmt.Errorf("notify %s: %w", name, err)
	}

	if cfg.Console {
		b.Add(NewConsolePublisher())
	}
	if cfg.File != "" {
		p, err := NewFilePublisher(cfg.File)
		if err != nil {
			return fail("file", err)
		}
		b.Add(p)
	}
	if w := cfg.Webhook; w.URL != "" {
		b.Add(NewWebhookPublisher(webhook.Config{
			URL:            w.URL,
			Secret:         w.Secret,
			MaxAttempts:    w.MaxAttempts,
			InitialBackoff: w.InitialBackoff,
			MaxBackoff:     w.MaxBackoff,
		}, WebhookOptions{Async: w.Async, BufferSize: w.BufferSize, Workers: w.Workers}))
	}
	if r := cfg.Redis; r.Addr != "" {
		p, err := NewRedisPublisher(r.Addr, r.Password, r.DB, r.Channel, r.Mode)
		if err != nil {
			return fail("redis", err)
		}
		b.Add(p)
	}
	if k := cfg.Kafka; len(k.Brokers) > 0 {
		p, err := NewKafkaPublisher(k.Brokers, k.Topic, k.User, k.Password)
		if err != nil {
			return fail("kafka", err)
		}
		b.Add(p)
	}
	if r := cfg.RabbitMQ; r.URL != "" {
		p, err := NewRabbitMQPublisher(r.URL, r.Exchange, r.RoutingKey, r.QueueName, r.Durable)
		if err != nil {
			return fail("rabbitmq", err)
		}
		b.Add(p)
	}

	if b.Len() == 0 {
		log.Info("No notification publishers configured")
	}
	return b, nil
}
