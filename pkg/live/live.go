package live

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Service runs the subscribers and the scheduler until the context is cancelled.
type Service struct {
	subscribers []*Subscriber
	scheduler   *Scheduler
}

func NewService(sched *Scheduler, subs ...*Subscriber) *Service {
	return &Service{subscribers: subs, scheduler: sched}
}

// Run returns nil after a clean shutdown. A task that fails with a
// non-recoverable error stops the others.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, sub := range s.subscribers {
		sub := sub
		g.Go(func() error { return sub.Run(ctx) })
	}
	if s.scheduler != nil {
		g.Go(func() error { return s.scheduler.Run(ctx) })
	}

	log.Info("Live service started", "subscriptions", len(s.subscribers), "scheduler", s.scheduler != nil)
	err := g.Wait()
	log.Info("Live service stopped")
	return err
}
