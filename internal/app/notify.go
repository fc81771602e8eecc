package app

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultOutboxSize bounds queued notifications when no size is configured.
const defaultOutboxSize = 256

// deliverTimeout caps one sink call.
const deliverTimeout = 5 * time.Second

// Notification is one fire-and-forget message for a user.
type Notification struct {
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier delivers notifications to users. Delivery failures are reported but never retried.
type Notifier interface {
	Notify(context.Context, Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(context.Context, Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Publisher accepts notifications after a mutation commits.
type Publisher interface {
	Publish(Notification) bool
}

// Outbox is a bounded queue drained by one dispatcher goroutine into a Notifier.
// Publish never blocks; a full or closed queue drops the message.
type Outbox struct {
	sink   Notifier
	logger Logger
	queue  chan Notification

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewOutbox constructs an outbox. A nil logger discards logs.
func NewOutbox(sink Notifier, size int, logger Logger) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Outbox{
		sink:   sink,
		logger: logger,
		queue:  make(chan Notification, size),
	}
}

// Start launches the dispatcher. Calling it more than once is a no-op.
func (o *Outbox) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.closed {
		return
	}
	o.started = true
	o.wg.Add(1)
	go o.drain()
}

// Publish enqueues n without blocking and reports whether it was accepted.
func (o *Outbox) Publish(n Notification) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.logger.Warn("notification dropped: outbox closed", "user_id", n.UserID)
		return false
	}
	select {
	case o.queue <- n:
		return true
	default:
		o.logger.Warn("notification dropped: outbox full", "user_id", n.UserID)
		return false
	}
}

// Stop closes the queue and waits for queued notifications to drain or ctx to end.
func (o *Outbox) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	started := o.started
	o.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notification outbox: %w", ctx.Err())
	}
}

// drain delivers queued notifications until the queue closes.
func (o *Outbox) drain() {
	defer o.wg.Done()
	for n := range o.queue {
		o.deliver(n)
	}
}

// deliver sends one notification, logging failures and recovering sink panics.
func (o *Outbox) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("notification sink panicked", "user_id", n.UserID, "panic", r)
		}
	}()
	if o.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := o.sink.Notify(ctx, n); err != nil {
		o.logger.Warn("notification delivery failed", "user_id", n.UserID, "err", err)
		return
	}
	o.logger.Debug("notification delivered", "user_id", n.UserID)
}
