package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-sujan/prepdesk/pkg/models"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"event":"lint.completed"}`)
	sig := Sign("shhh", body)

	assert.True(t, Verify("shhh", body, sig))
	assert.False(t, Verify("wrong", body, sig))
	assert.False(t, Verify("shhh", []byte(`{"event":"tampered"}`), sig))
	assert.Contains(t, sig, "sha256=")
}

type memoryLog struct {
	mu         sync.Mutex
	deliveries []models.Delivery
}

func (m *memoryLog) RecordDelivery(_ context.Context, d models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, d)
	return nil
}

func (m *memoryLog) all() []models.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Delivery(nil), m.deliveries...)
}

func stopDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func TestDeliverySignedAndRecorded(t *testing.T) {
	type received struct {
		event     string
		delivery  string
		signature string
		body      []byte
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			event:     r.Header.Get(HeaderEvent),
			delivery:  r.Header.Get(HeaderDelivery),
			signature: r.Header.Get(HeaderSignature),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := New(
		[]models.WebhookEndpoint{{Name: "ops", URL: server.URL, Secret: "s3cret"}},
		WithWorkers(1),
		WithDeliveryLog(log),
	)
	d.Start()
	defer stopDispatcher(t, d)

	d.Publish(models.Event{Name: models.EventLintCompleted, Data: map[string]int{"errors": 0}})

	select {
	case r := <-got:
		assert.Equal(t, models.EventLintCompleted, r.event)
		_, err := uuid.Parse(r.delivery)
		assert.NoError(t, err, "delivery id must be a uuid")
		assert.True(t, Verify("s3cret", r.body, r.signature))
		assert.Contains(t, string(r.body), `"event":"lint.completed"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery arrived")
	}

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	delivery := log.all()[0]
	assert.Equal(t, "ops", delivery.Endpoint)
	assert.Equal(t, http.StatusOK, delivery.StatusCode)
	assert.Equal(t, 1, delivery.Attempts)
	assert.Empty(t, delivery.Error)
	assert.True(t, delivery.Succeeded())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := New(
		[]models.WebhookEndpoint{{Name: "flaky", URL: server.URL}},
		WithWorkers(1),
		WithRetry(3, time.Millisecond),
		WithDeliveryLog(log),
	)
	d.Start()
	defer stopDispatcher(t, d)

	d.Publish(models.Event{Name: models.EventCorpusSynced})

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	delivery := log.all()[0]
	assert.Equal(t, 3, delivery.Attempts)
	assert.True(t, delivery.Succeeded())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsDoNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := New(
		[]models.WebhookEndpoint{{Name: "gone", URL: server.URL}},
		WithWorkers(1),
		WithRetry(3, time.Millisecond),
		WithDeliveryLog(log),
	)
	d.Start()
	defer stopDispatcher(t, d)

	d.Publish(models.Event{Name: models.EventGuideUpdated})

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	delivery := log.all()[0]
	assert.Equal(t, 1, delivery.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, delivery.Succeeded())
	assert.Contains(t, delivery.Error, "404")
}

func TestEventSubscriptionFilter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := New(
		[]models.WebhookEndpoint{{Name: "lint-only", URL: server.URL, Events: []string{models.EventLintCompleted}}},
		WithWorkers(1),
		WithDeliveryLog(log),
	)
	d.Start()

	d.Publish(models.Event{Name: models.EventDigestDaily})
	d.Publish(models.Event{Name: models.EventLintCompleted})

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	stopDispatcher(t, d)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, models.EventLintCompleted, log.all()[0].Event)
}

func TestBreakerShortCircuitsDeadEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := New(
		[]models.WebhookEndpoint{{Name: "dead", URL: server.URL}},
		WithWorkers(1),
		WithRetry(1, time.Millisecond),
		WithDeliveryLog(log),
	)
	d.Start()
	defer stopDispatcher(t, d)

	// Three failures open the breaker; the fourth is rejected unattempted.
	for i := 0; i < 4; i++ {
		d.Publish(models.Event{Name: models.EventWebhookTest})
	}

	require.Eventually(t, func() bool { return len(log.all()) == 4 }, 2*time.Second, 10*time.Millisecond)
	deliveries := log.all()
	assert.Contains(t, deliveries[2].Error, "endpoint returned 500")
	assert.Contains(t, deliveries[3].Error, "circuit breaker is open")
	assert.Zero(t, deliveries[3].StatusCode)
}

func TestStopDrainsQueue(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := New(
		[]models.WebhookEndpoint{{Name: "ops", URL: server.URL}},
		WithWorkers(2),
		WithDeliveryLog(log),
	)
	d.Start()

	for i := 0; i < 5; i++ {
		d.Publish(models.Event{Name: models.EventGuideUpdated})
	}
	stopDispatcher(t, d)

	assert.Equal(t, int32(5), calls.Load(), "queued deliveries finish before Stop returns")
	assert.Len(t, log.all(), 5)

	// Publishing after Stop is a quiet no-op.
	d.Publish(models.Event{Name: models.EventGuideUpdated})
	assert.Equal(t, int32(5), calls.Load())
}
