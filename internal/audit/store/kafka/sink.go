package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"authgate/internal/audit"
)

// Producer publishes one record.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Sink writes audit events to a Kafka topic, keyed by subject so one user's
// events stay ordered within a partition.
type Sink struct {
	producer Producer
	topic    string
}

// New creates a sink publishing to topic.
func New(producer Producer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

type payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Subject   string `json:"subject,omitempty"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Device    string `json:"device,omitempty"`
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(payload{
		ID:        event.ID,
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Subject:   event.Subject,
		Email:     event.Email,
		Provider:  event.Provider,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
		UserAgent: event.UserAgent,
		Device:    event.Device,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	headers := map[string]string{
		"event_type": event.Action,
		"category":   string(event.Category),
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(event.Subject), body, headers); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
