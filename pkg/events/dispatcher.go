package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDispatcherFull is returned when the buffer cannot take another event.
var ErrDispatcherFull = errors.New("event dispatcher buffer full")

// DispatcherConfig configures worker pool behaviour.
type DispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	// OnDelivery is told about every delivery attempt.
	OnDelivery func(ok bool)
}

type delivery struct {
	event   Event
	attempt int
}

// Dispatcher decouples request handling from the broker: Publish only buffers
// the event and a pool of workers hands it to the sink, retrying failures.
type Dispatcher struct {
	sink Sink

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	onDelivery func(ok bool)

	queue   chan delivery
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewDispatcher builds a dispatcher delivering to sink.
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnDelivery == nil {
		cfg.OnDelivery = func(bool) {}
	}
	return &Dispatcher{
		sink:       sink,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		onDelivery: cfg.OnDelivery,
		queue:      make(chan delivery, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.started = true
	d.logger.Info("event dispatcher started", zap.Int("workers", d.workers))
}

// Stop cancels workers and waits for them to exit. Buffered events that were
// not yet delivered are logged and dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.started = false
	d.mu.Unlock()
	d.wg.Wait()
	if pending := len(d.queue); pending > 0 {
		d.logger.Warn("event dispatcher stopped with undelivered events", zap.Int("pending", pending))
	}
	d.logger.Info("event dispatcher stopped")
}

// Publish buffers the event without waiting on the broker.
func (d *Dispatcher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return d.enqueue(delivery{event: event})
}

func (d *Dispatcher) enqueue(item delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return fmt.Errorf("event dispatcher not started")
	}
	select {
	case d.queue <- item:
		return nil
	default:
		return ErrDispatcherFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item := <-d.queue:
			err := d.sink.Publish(d.ctx, item.event)
			d.onDelivery(err == nil)
			if err != nil {
				d.handleFailure(item, err)
			}
		}
	}
}

func (d *Dispatcher) handleFailure(item delivery, err error) {
	item.attempt++
	fields := []zap.Field{
		zap.String("event_id", item.event.ID),
		zap.String("type", string(item.event.Type)),
		zap.String("section_id", item.event.SectionID),
		zap.Int("attempt", item.attempt),
		zap.Error(err),
	}
	if item.attempt > d.maxRetries {
		d.logger.Error("event exceeded retries", fields...)
		return
	}
	d.logger.Warn("event delivery failed, retrying", fields...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
			if err := d.enqueue(item); err != nil {
				d.logger.Error("failed to requeue event", zap.String("event_id", item.event.ID), zap.Error(err))
			}
		}
	}()
}
