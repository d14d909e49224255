package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/84hero/launchpad-indexer/internal/webhook"
	"github.com/IBM/sarama"
	"github.com/ethereum/go-ethereum/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// --- 1. Webhook ---

type WebhookPublisher struct {
	client   *webhook.Client
	async    bool
	queue    chan Notification
	wg       sync.WaitGroup
	closed   bool
	closedMu sync.Mutex
}

type WebhookOptions struct {
	Async      bool
	BufferSize int
	Workers    int
}

func NewWebhookPublisher(cfg webhook.Config, opts WebhookOptions) *WebhookPublisher {
	wp := &WebhookPublisher{
		client: webhook.NewClient(cfg),
		async:  opts.Async,
	}

	if opts.Async {
		if opts.BufferSize <= 0 {
			opts.BufferSize = 1000
		}
		if opts.Workers <= 0 {
			opts.Workers = 1
		}
		wp.queue = make(chan Notification, opts.BufferSize)
		for i := 0; i < opts.Workers; i++ {
			wp.wg.Add(1)
			go wp.worker()
		}
	}

	return wp
}

func (w *WebhookPublisher) Name() string { return "webhook" }

func (w *WebhookPublisher) worker() {
	defer w.wg.Done()
	for n := range w.queue {
		if err := w.client.Send(context.Background(), n); err != nil {
			log.Warn("Async webhook delivery failed", "type", n.Type, "err", err)
		}
	}
}

func (w *WebhookPublisher) Publish(ctx context.Context, n Notification) error {
	if w.async {
		w.closedMu.Lock()
		defer w.closedMu.Unlock()
		if w.closed {
			return fmt.Errorf("webhook publisher is closed")
		}
		select {
		case w.queue <- n:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return w.client.Send(ctx, n)
}

func (w *WebhookPublisher) Close() error {
	if w.async {
		w.closedMu.Lock()
		if !w.closed {
			w.closed = true
			close(w.queue)
		}
		w.closedMu.Unlock()
		w.wg.Wait()
	}
	return nil
}

// --- 2. File (JSON lines) ---

type FilePublisher struct {
	mu   sync.Mutex
	file *os.File
}

func NewFilePublisher(path string) (*FilePublisher, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FilePublisher{file: f}, nil
}

func (f *FilePublisher) Name() string { return "file" }

func (f *FilePublisher) Publish(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return json.NewEncoder(f.file).Encode(n)
}

func (f *FilePublisher) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// --- 3. Console ---

type ConsolePublisher struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsolePublisher() *ConsolePublisher {
	return &ConsolePublisher{out: os.Stdout}
}

func (c *ConsolePublisher) Name() string { return "console" }

func (c *ConsolePublisher) Publish(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.NewEncoder(c.out).Encode(n)
}

func (c *ConsolePublisher) Close() error { return nil }

// --- 4. Redis (pub/sub or list) ---

type RedisPublisher struct {
	client *redis.Client
	key    string
	mode   string
}

func NewRedisPublisher(addr, password string, db int, key, mode string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	if key == "" {
		key = "launchpad:events"
	}
	return &RedisPublisher{client: rdb, key: key, mode: mode}, nil
}

func (r *RedisPublisher) Name() string { return "redis" }

func (r *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if r.mode == "pubsub" {
		return r.client.Publish(ctx, r.key, data).Err()
	}
	return r.client.LPush(ctx, r.key, data).Err()
}

func (r *RedisPublisher) Close() error { return r.client.Close() }

// --- 5. Kafka ---

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic, user, password string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	if user != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = user
		config.Net.SASL.Password = password
	}
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

func (k *KafkaPublisher) Name() string { return "kafka" }

func (k *KafkaPublisher) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(n.Type),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

func (k *KafkaPublisher) Close() error { return k.producer.Close() }

// --- 6. RabbitMQ ---

type RabbitMQPublisher struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func NewRabbitMQPublisher(url, exchange, routingKey, queueName string, durable bool) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "topic", durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}
	if queueName != "" {
		q, err := ch.QueueDeclare(queueName, durable, false, false, false, nil)
		if err == nil {
			err = ch.QueueBind(q.Name, routingKey, exchange, false, nil)
		}
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (r *RabbitMQPublisher) Name() string { return "rabbitmq" }

func (r *RabbitMQPublisher) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.ch.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         n.Type,
		Body:         data,
	})
}

func (r *RabbitMQPublisher) Close() error {
	r.ch.Close()
	return r.conn.Close()
}
