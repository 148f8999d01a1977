package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/NaijaCare/internal/metrics"
	"github.com/BTreeMap/NaijaCare/internal/models"
	"github.com/BTreeMap/NaijaCare/internal/router"
)

// MessageHandler turns one inbound message into replies.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg models.InboundMessage) (router.Result, error)
}

// Dispatcher drains a Service's inbound channel. Each sender gets a FIFO queue
// drained by a single goroutine, so one user's messages are answered in arrival
// order while different users are answered in parallel.
type Dispatcher struct {
	service Service
	handler MessageHandler
	metrics *metrics.Metrics
	wg      sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]models.InboundMessage
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(service Service, handler MessageHandler, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		service: service,
		handler: handler,
		metrics: m,
		queues:  make(map[string][]models.InboundMessage),
	}
}

// Process answers one inbound message.
func (d *Dispatcher) Process(ctx context.Context, msg models.InboundMessage) error {
	canonicalFrom, err := d.service.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Error("Dispatcher.Process: invalid sender", "error", err, "from", msg.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	msg.From = canonicalFrom

	res, err := d.handler.HandleMessage(ctx, msg)
	if err != nil {
		slog.Error("Dispatcher.Process: handler failed", "error", err, "from", canonicalFrom)
		return fmt.Errorf("failed to handle message: %w", err)
	}

	for i, reply := range res.Replies {
		if err := d.service.SendMessage(ctx, canonicalFrom, reply); err != nil {
			d.metrics.ObserveOutbound("failed")
			slog.Error("Dispatcher.Process: failed to send reply", "error", err, "to", canonicalFrom, "index", i, "of", len(res.Replies))
			return fmt.Errorf("failed to send reply %d of %d: %w", i+1, len(res.Replies), err)
		}
		d.metrics.ObserveOutbound("sent")
	}
	slog.Info("Dispatcher.Process: answered", "from", canonicalFrom, "outcome", res.Outcome.Kind, "command", res.Command, "replies", len(res.Replies))
	return nil
}

// Start begins processing inbound messages until the channel closes or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher.Start: processing inbound messages")
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer slog.Info("Dispatcher stopped processing inbound messages")
		for {
			select {
			case msg, ok := <-d.service.Responses():
				if !ok {
					slog.Debug("Dispatcher: inbound channel closed")
					return
				}
				d.enqueue(ctx, msg)
			case <-ctx.Done():
				slog.Debug("Dispatcher: stopping due to context cancellation")
				return
			}
		}
	}()
}

// queueKey groups messages by canonical sender. Unparseable senders keep
// their raw value and fail later in Process.
func (d *Dispatcher) queueKey(from string) string {
	if key, err := d.service.ValidateAndCanonicalizeRecipient(from); err == nil {
		return key
	}
	return from
}

// enqueue appends msg to its sender's queue, starting a drain goroutine when
// the sender has none. A sender key is present in d.queues exactly while its
// drain goroutine runs.
func (d *Dispatcher) enqueue(ctx context.Context, msg models.InboundMessage) {
	key := d.queueKey(msg.From)

	d.mu.Lock()
	pending, active := d.queues[key]
	d.queues[key] = append(pending, msg)
	d.mu.Unlock()
	if active {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.drain(ctx, key)
	}()
}

func (d *Dispatcher) drain(ctx context.Context, key string) {
	for {
		d.mu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		msg := pending[0]
		d.queues[key] = pending[1:]
		d.mu.Unlock()

		if err := d.Process(ctx, msg); err != nil {
			slog.Error("Dispatcher: failed to process message", "error", err, "from", msg.From)
		}
	}
}

// Wait blocks until the receive loop and every in-flight message are done.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
