package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridepay/internal/logger"
)

// ErrClosed is returned when publishing to a dispatcher that has been closed.
var ErrClosed = errors.New("dispatcher closed")

// Options configures a Dispatcher.
type Options struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	Backoff     time.Duration
	Logger      *zap.Logger
	NewRelic    *newrelic.Application
}

type subscription struct {
	name    string
	handler Handler
}

type delivery struct {
	event Event
	sub   subscription
}

// Dispatcher fans events out to subscribers through a bounded queue served by
// a fixed worker pool. Each subscriber sees an event at least once unless it
// keeps failing past MaxAttempts; the publisher never waits for handlers.
type Dispatcher struct {
	opts  Options
	log   *zap.Logger
	queue chan delivery

	mu     sync.RWMutex
	subs   map[Name][]subscription
	closed bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before publishing.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Buffer < 1 {
		opts.Buffer = 64
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	return &Dispatcher{
		opts:  opts,
		log:   logger.OrNop(opts.Logger),
		queue: make(chan delivery, opts.Buffer),
		subs:  make(map[Name][]subscription),
	}
}

// Subscribe registers handler for events called name. subscriber names the
// handler in logs and New Relic transactions.
func (d *Dispatcher) Subscribe(name Name, subscriber string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[name] = append(d.subs[name], subscription{name: subscriber, handler: handler})
}

// Start launches the worker pool. Handlers run with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for dl := range d.queue {
				d.deliver(ctx, dl)
			}
		}()
	}
}

// Publish enqueues e for every current subscriber. It blocks while the queue
// is full and gives up when ctx is done.
func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	if e.CorrelationID == "" {
		e.CorrelationID = logger.CorrelationID(ctx)
	}
	for _, sub := range d.subs[e.Name] {
		select {
		case d.queue <- delivery{event: e, sub: sub}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting events and waits for queued deliveries to finish or
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dl delivery) {
	log := d.log.With(
		zap.String("event", string(dl.event.Name)),
		zap.String("event_id", dl.event.ID),
		zap.String("subscriber", dl.sub.name),
		zap.String("ride_id", dl.event.RideID()),
	)
	if dl.event.CorrelationID != "" {
		log = log.With(zap.String("correlation_id", dl.event.CorrelationID))
	}

	backoff := d.opts.Backoff
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		err := d.invoke(ctx, dl)
		if err == nil {
			return
		}
		if attempt == d.opts.MaxAttempts {
			log.Error("event delivery exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		log.Warn("event delivery failed, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Warn("event delivery abandoned", zap.Error(ctx.Err()))
			return
		}
		backoff *= 2
	}
}

func (d *Dispatcher) invoke(ctx context.Context, dl delivery) (err error) {
	txn := d.opts.NewRelic.StartTransaction("event/" + string(dl.event.Name) + "/" + dl.sub.name)
	defer txn.End()
	ctx = newrelic.NewContext(ctx, txn)
	ctx = logger.WithCorrelationID(ctx, dl.event.CorrelationID)
	if dl.event.CorrelationID != "" {
		txn.AddAttribute("correlation_id", dl.event.CorrelationID)
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
		if err != nil {
			txn.NoticeError(err)
		}
	}()
	return dl.sub.handler(ctx, dl.event)
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("subscriber panicked: %v", p.value)
}
