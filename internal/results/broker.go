// Package results ingests result insert events from Postgres and serves
// per-run aggregate state to subscribers, both as a pull snapshot and as a
// live stream.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alterity-ai/alterity/pkg/models"
	"github.com/google/uuid"
)

// ResultListener is the notification source the broker drains. Satisfied by
// store.Listener; tests substitute a fake.
type ResultListener interface {
	Listen(ctx context.Context) error
	WaitForNotification(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// ListenerFactory opens a fresh listener connection. The broker calls it again
// after a connection drop.
type ListenerFactory func(ctx context.Context) (ResultListener, error)

// brokerEvent is one mailbox entry. Exactly one of the three cases is set: a
// result event, a resync marker after the listener reconnected, or a terminal
// error.
type brokerEvent struct {
	ev     models.ResultEvent
	resync bool
	err    error
}

// subscription is one subscriber's mailbox. Events are queued without bound so
// a slow reader delays its own stream rather than losing counts; memory is
// bounded by the run's result volume.
type subscription struct {
	mu    sync.Mutex
	queue []brokerEvent
	wake  chan struct{}
	quit  chan struct{}
	out   chan brokerEvent
}

func newSubscription() *subscription {
	s := &subscription{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		out:  make(chan brokerEvent),
	}
	go s.pump()
	return s
}

func (s *subscription) push(ev brokerEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pump() {
	for {
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range pending {
			select {
			case s.out <- ev:
			case <-s.quit:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}

func (s *subscription) stop() {
	close(s.quit)
}

// Broker fans result events out to per-run subscribers. It owns the listener
// connection and reconnects on failure; subscribers past the retry budget get
// a terminal error event instead of a silent stall.
type Broker struct {
	connect ListenerFactory
	retries int
	backoff time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]map[*subscription]struct{}
	failed error
}

// NewBroker creates a broker. Start must be called before Subscribe delivers
// anything.
func NewBroker(connect ListenerFactory, retries int, backoff time.Duration, logger *slog.Logger) *Broker {
	return &Broker{
		connect: connect,
		retries: retries,
		backoff: backoff,
		logger:  logger,
		subs:    make(map[uuid.UUID]map[*subscription]struct{}),
	}
}

// Start drains notifications until ctx is cancelled. It blocks; run it in its
// own goroutine. The failure budget counts consecutive failed sessions only:
// each session that gets as far as LISTEN resets it, so isolated drops on a
// long-lived deployment never accumulate into a permanent shutdown.
func (b *Broker) Start(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		err := b.run(ctx, func() {
			failures = 0
			// NOTIFY is fire-and-forget: anything committed while no
			// connection was listening was never announced. Subscribers
			// reconcile against the results table to pick those rows up.
			b.broadcast(brokerEvent{resync: true})
		})
		if ctx.Err() != nil {
			return
		}
		failures++
		b.logger.Error("result listener disconnected", "error", err, "consecutive_failures", failures)
		if failures >= b.retries {
			b.fail(fmt.Errorf("result listener gave up after %d consecutive failures: %w", failures, err))
			return
		}
		select {
		case <-time.After(b.backoff):
		case <-ctx.Done():
			return
		}
	}
}

// run owns one listener session. onListen fires once the channel is attached.
func (b *Broker) run(ctx context.Context, onListen func()) error {
	listener, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer listener.Close(context.Background())

	if err := listener.Listen(ctx); err != nil {
		return err
	}
	b.logger.Info("result listener attached")
	onListen()

	for {
		payload, err := listener.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var ev models.ResultEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			b.logger.Error("malformed result notification", "error", err, "payload", payload)
			continue
		}
		b.dispatch(brokerEvent{ev: ev})
	}
}

// broadcast pushes an event to every subscriber of every run.
func (b *Broker) broadcast(ev brokerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for sub := range subs {
			sub.push(ev)
		}
	}
}

func (b *Broker) dispatch(ev brokerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[ev.ev.RunID] {
		sub.push(ev)
	}
}

// fail marks the broker dead and notifies every live subscriber.
func (b *Broker) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = err
	for _, subs := range b.subs {
		for sub := range subs {
			sub.push(brokerEvent{err: err})
		}
	}
}

// subscribe attaches a mailbox for runID. Callers must unsubscribe when done.
func (b *Broker) subscribe(runID uuid.UUID) (*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed != nil {
		return nil, b.failed
	}
	sub := newSubscription()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*subscription]struct{})
	}
	b.subs[runID][sub] = struct{}{}
	return sub, nil
}

func (b *Broker) unsubscribe(runID uuid.UUID, sub *subscription) {
	b.mu.Lock()
	if set := b.subs[runID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, runID)
		}
	}
	b.mu.Unlock()
	sub.stop()
}
