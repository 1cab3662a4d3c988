package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	index := flag.String("index", "", "target index name")
	kind := flag.String("kind", string(controller.KindDocumentsAddition), "update kind: DocumentsAddition, ClearDocuments, DeleteDocuments, Settings, Facets")
	method := flag.String("method", string(controller.ReplaceDocuments), "ReplaceDocuments or UpdateDocuments")
	format := flag.String("format", "", "payload format: Json, JsonStream or Csv (default from the file extension)")
	file := flag.String("file", "", "documents payload, or settings/facets JSON")
	ids := flag.String("ids", "", "comma separated document ids for DeleteDocuments")
	status := flag.String("status", "", "look up a mirrored update status as <index-uuid>/<update-id> instead of submitting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if *status != "" {
		err = lookup(ctx, cfg, *status)
	} else {
		var req ingestion.UpdateRequest
		req, err = buildRequest(*index, *kind, *method, *format, *file, *ids)
		if err == nil {
			err = submit(ctx, cfg, req)
		}
	}
	if err != nil {
		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			for field, msg := range ve.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		slog.Error("submit failed", "error", err)
		os.Exit(1)
	}
}

func buildRequest(index, kind, method, format, file, ids string) (ingestion.UpdateRequest, error) {
	req := ingestion.UpdateRequest{Index: index, Kind: controller.UpdateKind(kind)}
	var body []byte
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return req, fmt.Errorf("reading %s: %w", file, err)
		}
		body = b
	}
	switch req.Kind {
	case controller.KindDocumentsAddition:
		req.Method = controller.IndexDocumentsMethod(method)
		req.Format = controller.UpdateFormat(format)
		if format == "" {
			req.Format = formatFromExtension(file)
		}
		req.Payload = body
	case controller.KindDeleteDocuments:
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.DocumentIDs = append(req.DocumentIDs, id)
			}
		}
	case controller.KindSettings:
		if body != nil {
			req.Settings = new(controller.Settings)
			if err := json.Unmarshal(body, req.Settings); err != nil {
				return req, err
			}
		}
	case controller.KindFacets:
		if body != nil {
			req.Facets = new(controller.Facets)
			if err := json.Unmarshal(body, req.Facets); err != nil {
				return req, err
			}
		}
	}
	return req, nil
}

func formatFromExtension(file string) controller.UpdateFormat {
	switch {
	case strings.HasSuffix(file, ".csv"):
		return controller.FormatCSV
	case strings.HasSuffix(file, ".ndjson"), strings.HasSuffix(file, ".jsonl"):
		return controller.FormatJSONStream
	default:
		return controller.FormatJSON
	}
}

func submit(ctx context.Context, cfg *config.Config, req ingestion.UpdateRequest) error {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.UpdateRequests)
	defer producer.Close()

	resp, err := publisher.New(producer).Submit(ctx, req)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(resp)
}

func lookup(ctx context.Context, cfg *config.Config, ref string) error {
	idx, id, ok := strings.Cut(ref, "/")
	if !ok {
		return fmt.Errorf("status reference %q is not <index-uuid>/<update-id>", ref)
	}
	indexUUID, err := uuid.Parse(idx)
	if err != nil {
		return fmt.Errorf("parsing index uuid: %w", err)
	}
	var updateID uint64
	if _, err := fmt.Sscan(id, &updateID); err != nil {
		return fmt.Errorf("parsing update id: %w", err)
	}

	rc, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer rc.Close()
	st, found, err := notify.Lookup(ctx, rc, redis.IsNilError, indexUUID, updateID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no status mirrored for %s", ref)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
