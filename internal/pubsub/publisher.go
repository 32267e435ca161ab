package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/model"

	"cloud.google.com/go/pubsub"
)

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// JobEvent is the lifecycle notification emitted for downstream analytics
// when a generation job is dispatched or reaches a terminal state. Event
// delivery is fire-and-forget; losing one never fails a user request.
type JobEvent struct {
	Event       string          `json:"event"` // job.dispatched, job.succeeded, job.failed
	JobID       string          `json:"job_id"`
	UserID      string          `json:"user_id"`
	Status      model.JobStatus `json:"status"`
	ErrorReason string          `json:"error_reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// PublishJobEvent marshals and publishes one job lifecycle event.
func PublishJobEvent(ctx context.Context, p Publisher, topic string, ev JobEvent) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshaling job event: %w", err)
	}
	return p.Publish(ctx, topic, data)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPublisher creates a new PubSubPublisher for the given GCP project.
func NewPublisher(ctx context.Context, projectID string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}
