package models

import "time"

// Event names prepdesk publishes to webhook endpoints.
const (
	EventGuideUpdated  = "guide.updated"
	EventCorpusSynced  = "corpus.synced"
	EventLintCompleted = "lint.completed"
	EventDigestDaily   = "digest.daily"
	EventWebhookTest   = "webhook.test"
)

// Event is an outbound notification payload.
type Event struct {
	Name       string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
}

// WebhookEndpoint is a configured destination URL for outbound events.
// Secret keys the HMAC signature on every delivery.
type WebhookEndpoint struct {
	Name   string   `yaml:"name" json:"name"`
	URL    string   `yaml:"url" json:"url"`
	Secret string   `yaml:"secret" json:"-"`
	Events []string `yaml:"events" json:"events,omitempty"` // empty = all
}

// Wants reports whether the endpoint subscribes to the event name.
func (e WebhookEndpoint) Wants(event string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, name := range e.Events {
		if name == event {
			return true
		}
	}
	return false
}

// Delivery records one delivery attempt sequence to an endpoint.
type Delivery struct {
	ID          string    `json:"id"`
	Endpoint    string    `json:"endpoint"`
	Event       string    `json:"event"`
	StatusCode  int       `json:"status_code,omitempty"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Succeeded reports whether the delivery ended on a 2xx response.
func (d Delivery) Succeeded() bool {
	return d.StatusCode >= 200 && d.StatusCode < 300
}
