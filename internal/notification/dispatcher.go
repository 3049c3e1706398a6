package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Envelope is what leaves the engine: a composed message plus who it is
// for. An external sender turns it into an e-mail or WhatsApp message.
type Envelope struct {
	ID            string    `json:"id"`
	RecordID      string    `json:"record_id"`
	CondominiumID string    `json:"condominium_id"`
	Category      Category  `json:"category"`
	RecipientName string    `json:"recipient_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Message       Message   `json:"message"`
	ComposedAt    time.Time `json:"composed_at"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Outbox hands envelopes to the delivery side.
type Outbox interface {
	Publish(ctx context.Context, e Envelope) error
}

// LogOutbox records envelopes in the log when no broker is configured.
type LogOutbox struct {
	logger *slog.Logger
}

func NewLogOutbox(logger *slog.Logger) *LogOutbox {
	return &LogOutbox{logger: logger}
}

func (o *LogOutbox) Publish(ctx context.Context, e Envelope) error {
	o.logger.InfoContext(ctx, "notification composed",
		"envelope_id", e.ID,
		"record_id", e.RecordID,
		"category", string(e.Category),
		"has_phone", e.Phone != "",
		"has_email", e.Email != "",
	)
	return nil
}

var ErrDispatcherClosed = errors.New("notification dispatcher closed")

// Dispatcher publishes envelopes off the request path. A full queue drops
// the envelope: the operator still holds the composed text and link.
type Dispatcher struct {
	outbox Outbox
	logger *slog.Logger
	queue  chan Envelope

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(outbox Outbox, logger *slog.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		outbox: outbox,
		logger: logger,
		queue:  make(chan Envelope, buffer),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Dispatch enqueues e without blocking.
func (d *Dispatcher) Dispatch(ctx context.Context, e Envelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- e:
		return nil
	default:
		d.logger.WarnContext(ctx, "notification queue full, dropping envelope",
			"envelope_id", e.ID,
			"record_id", e.RecordID,
		)
		return errors.New("notification queue full")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.outbox.Publish(ctx, e); err != nil {
			d.logger.ErrorContext(ctx, "failed to publish notification",
				"envelope_id", e.ID,
				"record_id", e.RecordID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting envelopes and waits for the queue to empty.
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
