// Package validator checks update requests before they are published and
// again when they are consumed, returning per-field error details.
package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
)

const (
	maxPayloadSize   = 8 << 20
	maxDocumentIDs   = 100000
	maxRequestIDSize = 255
)

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,400}$`)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateUpdateRequest checks that the request carries what its kind needs.
func ValidateUpdateRequest(req *ingestion.UpdateRequest) error {
	errs := make(map[string]string)

	if !indexNamePattern.MatchString(req.Index) {
		errs["index"] = "index must be 1 to 400 alphanumeric, '-' or '_' characters"
	}
	if len(req.RequestID) > maxRequestIDSize {
		errs["requestId"] = fmt.Sprintf("request id must be at most %d characters", maxRequestIDSize)
	}

	switch req.Kind {
	case controller.KindDocumentsAddition:
		switch req.Method {
		case controller.ReplaceDocuments, controller.UpdateDocuments:
		default:
			errs["method"] = fmt.Sprintf("unknown method %q", req.Method)
		}
		switch req.Format {
		case controller.FormatJSON, controller.FormatJSONStream, controller.FormatCSV:
		default:
			errs["format"] = fmt.Sprintf("unknown format %q", req.Format)
		}
		if len(req.Payload) == 0 {
			errs["payload"] = "payload is required"
		} else if len(req.Payload) > maxPayloadSize {
			errs["payload"] = fmt.Sprintf("payload must be at most %d bytes", maxPayloadSize)
		}
	case controller.KindClearDocuments:
	case controller.KindDeleteDocuments:
		if len(req.DocumentIDs) == 0 {
			errs["documentIds"] = "at least one document id is required"
		} else if len(req.DocumentIDs) > maxDocumentIDs {
			errs["documentIds"] = fmt.Sprintf("at most %d document ids per request", maxDocumentIDs)
		}
	case controller.KindSettings:
		if req.Settings == nil {
			errs["settings"] = "settings are required"
		} else if err := req.Settings.Validate(); err != nil {
			errs["settings"] = err.Error()
		}
	case controller.KindFacets:
		if req.Facets == nil {
			errs["facets"] = "facets are required"
		}
	default:
		errs["kind"] = fmt.Sprintf("unknown kind %q", req.Kind)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
