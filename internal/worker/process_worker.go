package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/model"
	"github.com/hiswaca/etl-console/internal/service"
)

// Broadcaster publishes processing updates; *websocket.Hub implements it
type Broadcaster interface {
	BroadcastProgress(channel string, status model.UploadStatus, step string)
	BroadcastComplete(channel string, result interface{})
	BroadcastError(channel string, code, message string)
}

// OutcomeRecorder keeps the last result of a run; *service.ProcessService implements it
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome *model.ProcessOutcome) error
}

const CodeProcessingFailed = "PROCESSING_FAILED"

// ProcessWorker runs manual processing of uploads
type ProcessWorker struct {
	api          client.PortalAPI
	hub          Broadcaster
	outcomes     OutcomeRecorder
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewProcessWorker creates a new process worker. outcomes may be nil.
func NewProcessWorker(api client.PortalAPI, hub Broadcaster, outcomes OutcomeRecorder, pollInterval, pollTimeout time.Duration) *ProcessWorker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Minute
	}
	return &ProcessWorker{
		api:          api,
		hub:          hub,
		outcomes:     outcomes,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// ProcessTask handles one etl:process task. Failures are never retried.
func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	id := payload.UploadID
	channel := model.UploadChannel(id)
	if payload.Token != "" {
		ctx = auth.WithBearer(ctx, payload.Token)
	}

	log.Printf("[ETL Worker] processing upload %d (requested by %s)", id, payload.RequestedBy)
	w.hub.BroadcastProgress(channel, model.UploadProcessing, "Processing requested")

	resp, err := w.api.ProcessUpload(ctx, id)
	if err != nil {
		return w.fail(ctx, id, nil, client.UserMessage(err), err)
	}

	record, err := client.PollUpload(ctx, w.api, id, w.pollInterval, w.pollTimeout, func(r *model.UploadRecord) {
		w.hub.BroadcastProgress(channel, r.Status, progressStep(r))
	})
	if err != nil {
		return w.fail(ctx, id, nil, client.UserMessage(err), err)
	}

	if record.Status == model.UploadFailed {
		msg := "Processing failed"
		if record.ErrorMessage != nil && *record.ErrorMessage != "" {
			msg = *record.ErrorMessage
		}
		return w.fail(ctx, id, record, msg, fmt.Errorf("upload %d failed on backend: %s", id, msg))
	}

	outcome := &model.ProcessOutcome{
		UploadID:   id,
		Status:     record.Status,
		Record:     record,
		Result:     resp.Result(),
		FinishedAt: time.Now().UTC(),
	}
	w.record(ctx, outcome)
	w.hub.BroadcastComplete(channel, outcome)

	log.Printf("[ETL Worker] upload %d completed: %d/%d rows", id, record.ProcessedRows, record.TotalRows)
	return nil
}

func (w *ProcessWorker) fail(ctx context.Context, id int, record *model.UploadRecord, msg string, cause error) error {
	log.Printf("[ETL Worker] upload %d failed: %v", id, cause)

	status := model.UploadFailed
	if record != nil {
		status = record.Status
	}
	w.record(ctx, &model.ProcessOutcome{
		UploadID:   id,
		Status:     status,
		Record:     record,
		Error:      msg,
		FinishedAt: time.Now().UTC(),
	})
	w.hub.BroadcastError(model.UploadChannel(id), CodeProcessingFailed, msg)
	return fmt.Errorf("%v: %w", cause, asynq.SkipRetry)
}

func (w *ProcessWorker) record(ctx context.Context, outcome *model.ProcessOutcome) {
	if w.outcomes == nil {
		return
	}
	if err := w.outcomes.RecordOutcome(context.WithoutCancel(ctx), outcome); err != nil {
		log.Printf("[ETL Worker] failed to record outcome of upload %d: %v", outcome.UploadID, err)
	}
}

func progressStep(r *model.UploadRecord) string {
	if r.StatusDisplay != "" {
		return r.StatusDisplay
	}
	if r.TotalRows > 0 {
		return fmt.Sprintf("%d/%d rows processed", r.ProcessedRows, r.TotalRows)
	}
	return string(r.Status)
}
