// Package notify pushes "new data available" notifications to downstream consumers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/84hero/launchpad-indexer/internal/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Notification types.
const (
	TypeTokenDeployed = "tokenDeployed"
	TypeTrade         = "trade"
)

// Notification is the envelope every publisher sends.
type Notification struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Publisher delivers notifications to one downstream system.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// Notifier is the push collaborator used by event handlers.
type Notifier interface {
	Broadcast(ctx context.Context, eventType string, payload any) error
}

// Broadcaster fans a notification out to every configured publisher.
type Broadcaster struct {
	publishers []Publisher
	now        func() time.Time
}

func NewBroadcaster(publishers ...Publisher) *Broadcaster {
	return &Broadcaster{publishers: publishers, now: time.Now}
}

// Add registers another publisher.
func (b *Broadcaster) Add(p Publisher) {
	b.publishers = append(b.publishers, p)
}

// Len returns the number of publishers.
func (b *Broadcaster) Len() int {
	return len(b.publishers)
}

// Broadcast sends to all publishers. A failing publisher does not stop the others.
func (b *Broadcaster) Broadcast(ctx context.Context, eventType string, payload any) error {
	n := Notification{
		Type:      eventType,
		Timestamp: b.now().Unix(),
		Data:      payload,
	}

	var errs []error
	for _, p := range b.publishers {
		if err := p.Publish(ctx, n); err != nil {
			metrics.NotifyError(p.Name())
			log.Warn("Notification failed", "publisher", p.Name(), "type", eventType, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (b *Broadcaster) Close() error {
	var errs []error
	for _, p := range b.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Broadcast(context.Context, string, any) error { return nil }
