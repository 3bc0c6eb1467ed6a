package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/pkg/natsutil"
)

const (
	// IngestSubject carries normalized source records as JSON.
	IngestSubject = "docs.ingest"
	// DLQSubject receives records that exhausted their retries.
	DLQSubject = "docs.ingest.dlq"
	// ReportSubject receives a Report per processed record.
	ReportSubject = "docs.ingest.report"
	// MaxRetries before a record goes to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ on permanent failure.
type dlqMessage struct {
	Record  domain.SourceRecord `json:"record"`
	Error   string              `json:"error"`
	Retries int                 `json:"retries"`
}

// StartConsumer subscribes to IngestSubject and runs each record through
// the pipeline. Transient failures are re-published with an incremented
// retry header; validation failures and exhausted retries go to the DLQ.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var record domain.SourceRecord
		if err := json.Unmarshal(msg.Data, &record); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()
		retries := retryCount(msg)

		report, err := deps.Ingest(ctx, record)
		if err != nil {
			retries++
			log.Error("ingest: record failed",
				"record_id", record.ID,
				"error", err,
				"retry", retries,
			)

			// Validation failures never heal on retry.
			permanent := errors.As(err, new(*domain.ValidationError))
			if permanent || retries >= MaxRetries {
				publishDLQ(ctx, nc, log, record, err, retries)
			} else {
				retryMsg := nats.NewMsg(IngestSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set(retryHeader, strconv.Itoa(retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
			return
		}

		if report.Skipped {
			log.Info("ingest: duplicate skipped", "record_id", record.ID)
		} else {
			log.Info("ingest: record done",
				"record_id", record.ID,
				"chunks", report.ChunkCount,
				"indexed", report.Indexed,
				"failed", len(report.Failed),
			)
		}
		if err := natsutil.Publish(ctx, nc, ReportSubject, report); err != nil {
			log.Warn("ingest: report publish failed", "error", err)
		}
	})
}

func retryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, _ := strconv.Atoi(msg.Header.Get(retryHeader))
	return n
}

func publishDLQ(ctx context.Context, nc *nats.Conn, log *slog.Logger, record domain.SourceRecord, cause error, retries int) {
	dlq := dlqMessage{Record: record, Error: cause.Error(), Retries: retries}
	if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
		log.Error("ingest: DLQ publish failed", "error", fmt.Errorf("publish %s: %w", DLQSubject, err))
	}
}
