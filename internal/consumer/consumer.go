// Package consumer reads update requests from Kafka and enqueues them on the
// index controller.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

// Writer is the part of the controller the consumer drives.
type Writer interface {
	AddDocuments(ctx context.Context, index string, method controller.IndexDocumentsMethod, format controller.UpdateFormat, payload []byte) (controller.UpdateStatus, error)
	ClearDocuments(ctx context.Context, index string) (controller.UpdateStatus, error)
	DeleteDocuments(ctx context.Context, index string, ids []string) (controller.UpdateStatus, error)
	UpdateSettings(ctx context.Context, index string, settings controller.Settings) (controller.UpdateStatus, error)
	UpdateFacets(ctx context.Context, index string, facets controller.Facets) (controller.UpdateStatus, error)
}

// IndexConsumer wraps a Kafka consumer to feed the controller.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that enqueues each update
// request. Requests the controller can never accept are reported as
// kafka.ErrPoison; an unavailable controller leaves the message uncommitted.
func HandleMessage(w Writer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ingestion.UpdateRequest](value)
		if err != nil {
			logger.Error("failed to decode update request", "error", err, "key", string(key))
			return err
		}
		if err := validator.ValidateUpdateRequest(&req); err != nil {
			logger.Error("invalid update request", "request_id", req.RequestID, "error", err)
			return fmt.Errorf("%w: %w", kafka.ErrPoison, err)
		}

		st, err := dispatch(ctx, w, req)
		if err != nil {
			if permanent(err) {
				logger.Warn("update request rejected", "request_id", req.RequestID, "index", req.Index, "error", err)
				return fmt.Errorf("%w: %w", kafka.ErrPoison, err)
			}
			return fmt.Errorf("enqueuing request %s: %w", req.RequestID, err)
		}
		logger.Info("update request enqueued",
			"request_id", req.RequestID,
			"index", req.Index,
			"kind", req.Kind,
			"update_id", st.UpdateID(),
		)
		return nil
	}
}

func dispatch(ctx context.Context, w Writer, req ingestion.UpdateRequest) (controller.UpdateStatus, error) {
	switch req.Kind {
	case controller.KindDocumentsAddition:
		return w.AddDocuments(ctx, req.Index, req.Method, req.Format, req.Payload)
	case controller.KindClearDocuments:
		return w.ClearDocuments(ctx, req.Index)
	case controller.KindDeleteDocuments:
		return w.DeleteDocuments(ctx, req.Index, req.DocumentIDs)
	case controller.KindSettings:
		return w.UpdateSettings(ctx, req.Index, *req.Settings)
	case controller.KindFacets:
		return w.UpdateFacets(ctx, req.Index, *req.Facets)
	}
	return controller.UpdateStatus{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown kind %q", req.Kind)
}

func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrIndexNotFound)
}
