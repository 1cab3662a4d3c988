// Package ingestion defines the update request published to Kafka by
// clients and consumed by the indexer daemon.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller"
)

// UpdateRequest asks the indexer to enqueue one update. Only the fields of
// Kind's variant are set.
type UpdateRequest struct {
	RequestID   string                          `json:"requestId"`
	Index       string                          `json:"index"`
	Kind        controller.UpdateKind           `json:"kind"`
	Method      controller.IndexDocumentsMethod `json:"method,omitempty"`
	Format      controller.UpdateFormat         `json:"format,omitempty"`
	Payload     []byte                          `json:"payload,omitempty"`
	DocumentIDs []string                        `json:"documentIds,omitempty"`
	Settings    *controller.Settings            `json:"settings,omitempty"`
	Facets      *controller.Facets              `json:"facets,omitempty"`
	SubmittedAt time.Time                       `json:"submittedAt"`
}

// SubmitResponse identifies a published request.
type SubmitResponse struct {
	RequestID string `json:"requestId"`
	Topic     string `json:"topic"`
}
