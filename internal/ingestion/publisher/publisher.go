// Package publisher validates update requests and publishes them to Kafka,
// keyed by index name so that the requests of one index keep their order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

// Producer is the subset of kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
	Topic() string
}

// Publisher turns update requests into Kafka events.
type Publisher struct {
	producer Producer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Publisher writing through producer.
func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Submit stamps the request with an id (unless it has one) and a submission
// time, validates it and publishes it.
func (p *Publisher) Submit(ctx context.Context, req ingestion.UpdateRequest) (*ingestion.SubmitResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.SubmittedAt = p.now()
	if err := validator.ValidateUpdateRequest(&req); err != nil {
		return nil, err
	}

	event := kafka.Event{
		Key:   req.Index,
		Value: req,
		Headers: map[string]string{
			"kind":       string(req.Kind),
			"request-id": req.RequestID,
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing update request %s: %w", req.RequestID, err)
	}
	p.logger.Info("update request published",
		"request_id", req.RequestID,
		"index", req.Index,
		"kind", req.Kind,
	)
	return &ingestion.SubmitResponse{RequestID: req.RequestID, Topic: p.producer.Topic()}, nil
}
