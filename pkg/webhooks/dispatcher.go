package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dev-sujan/prepdesk/pkg/logging"
	"github.com/dev-sujan/prepdesk/pkg/metrics"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/resilience"
)

// DeliveryLog persists delivery outcomes. The questions store implements it.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d models.Delivery) error
}

type job struct {
	endpoint models.WebhookEndpoint
	event    models.Event
	body     []byte
}

// Dispatcher fans events out to subscribed endpoints from a worker pool.
// Each endpoint gets its own circuit breaker so one dead receiver cannot
// stall deliveries to the rest.
type Dispatcher struct {
	endpoints  []models.WebhookEndpoint
	client     *http.Client
	deliveries DeliveryLog
	breakers   map[string]*resilience.CircuitBreaker
	log        zerolog.Logger

	workers     int
	maxAttempts int
	backoff     time.Duration

	queue chan job
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithDeliveryLog installs persistence for delivery outcomes.
func WithDeliveryLog(log DeliveryLog) Option {
	return func(d *Dispatcher) { d.deliveries = log }
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the pending-delivery buffer.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan job, n)
		}
	}
}

// WithRetry sets the attempt cap and the base backoff between attempts.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// New creates a Dispatcher for the configured endpoints.
func New(endpoints []models.WebhookEndpoint, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		endpoints:   endpoints,
		client:      &http.Client{Timeout: 10 * time.Second},
		breakers:    make(map[string]*resilience.CircuitBreaker, len(endpoints)),
		log:         logging.WithComponent("webhooks"),
		workers:     2,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
		queue:       make(chan job, 128),
	}
	for _, opt := range opts {
		opt(d)
	}

	onChange := func(name string, state resilience.State) {
		metrics.SetCircuitBreakerState(name, string(state))
		d.log.Warn().Str("endpoint", name).Str("state", string(state)).Msg("circuit breaker state changed")
	}
	for _, ep := range endpoints {
		d.breakers[ep.Name] = resilience.NewCircuitBreaker(ep.Name, 3, 30*time.Second,
			resilience.WithStateChange(onChange))
		metrics.SetCircuitBreakerState(ep.Name, string(resilience.StateClosed))
	}
	return d
}

// Start launches the worker pool. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info().Int("endpoints", len(d.endpoints)).Int("workers", d.workers).Msg("webhook dispatcher started")
}

// Publish enqueues the event for every subscribed endpoint. A full queue
// drops the delivery rather than blocking the caller.
func (d *Dispatcher) Publish(event models.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Str("event", event.Name).Msg("event payload does not marshal")
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	for _, ep := range d.endpoints {
		if !ep.Wants(event.Name) {
			continue
		}
		select {
		case d.queue <- job{endpoint: ep, event: event, body: body}:
		default:
			metrics.RecordWebhookDelivery(ep.Name, "dropped")
			d.log.Warn().Str("endpoint", ep.Name).Str("event", event.Name).Msg("delivery queue full, dropping event")
		}
	}
}

// Stop drains the queue and waits for in-flight deliveries until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		return nil
	}

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

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

// deliver runs the attempt loop for one endpoint. Transport errors and 5xx
// responses retry with doubling backoff; 4xx responses and an open breaker
// give up immediately.
func (d *Dispatcher) deliver(j job) {
	deliveryID := uuid.NewString()
	breaker := d.breakers[j.endpoint.Name]
	start := time.Now()

	var status int
	var lastErr error
	attempts := 0

	for attempts < d.maxAttempts {
		attempts++

		err := breaker.Execute(func() error {
			code, err := d.post(j, deliveryID)
			status = code
			if err != nil {
				return err
			}
			if code < 200 || code > 299 {
				return fmt.Errorf("endpoint returned %d", code)
			}
			return nil
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		if errors.Is(err, resilience.ErrCircuitOpen) {
			break
		}
		if status >= 400 && status < 500 {
			break
		}
		if attempts < d.maxAttempts {
			time.Sleep(d.backoff << (attempts - 1))
		}
	}

	delivery := models.Delivery{
		ID:          deliveryID,
		Endpoint:    j.endpoint.Name,
		Event:       j.event.Name,
		StatusCode:  status,
		Attempts:    attempts,
		DeliveredAt: time.Now(),
		DurationMS:  time.Since(start).Milliseconds(),
	}

	outcome := "delivered"
	if lastErr != nil {
		outcome = "failed"
		delivery.Error = lastErr.Error()
		d.log.Warn().
			Str("endpoint", j.endpoint.Name).
			Str("event", j.event.Name).
			Int("attempts", attempts).
			Err(lastErr).
			Msg("webhook delivery failed")
	} else {
		d.log.Debug().
			Str("endpoint", j.endpoint.Name).
			Str("event", j.event.Name).
			Int("status", status).
			Msg("webhook delivered")
	}
	metrics.RecordWebhookDelivery(j.endpoint.Name, outcome)

	if d.deliveries != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.deliveries.RecordDelivery(ctx, delivery); err != nil {
			d.log.Warn().Err(err).Str("delivery", deliveryID).Msg("delivery log write failed")
		}
		cancel()
	}
}

func (d *Dispatcher) post(j job, deliveryID string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, j.endpoint.URL, bytes.NewReader(j.body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "prepdesk-webhooks")
	req.Header.Set(HeaderEvent, j.event.Name)
	req.Header.Set(HeaderDelivery, deliveryID)
	if j.endpoint.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(j.endpoint.Secret, j.body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
