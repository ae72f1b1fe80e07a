package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/model"
)

const (
	TaskTypeProcessUpload = "etl:process"
	QueueETL              = "etl"
)

var (
	// ErrAlreadyQueued is returned when processing of the upload is already pending.
	ErrAlreadyQueued = errors.New("processing of this upload is already queued")
	ErrNoOutcome     = errors.New("no processing outcome recorded")
)

const outcomeTTL = 24 * time.Hour

// Enqueuer is the part of *asynq.Client the service needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ProcessPayload is the asynq task body for manual processing
type ProcessPayload struct {
	UploadID    int    `json:"uploadId"`
	RequestedBy string `json:"requestedBy,omitempty"`
	Token       string `json:"token,omitempty"`
}

// ProcessService queues manual (re)processing of pending uploads
type ProcessService struct {
	queue     Enqueuer
	redis     *redis.Client
	uniqueFor time.Duration
}

// NewProcessService creates the service. uniqueFor bounds how long a second
// request for the same upload is refused. Without redis, outcomes are not kept.
func NewProcessService(queue Enqueuer, redisClient *redis.Client, uniqueFor time.Duration) *ProcessService {
	if uniqueFor <= 0 {
		uniqueFor = 10 * time.Minute
	}
	return &ProcessService{queue: queue, redis: redisClient, uniqueFor: uniqueFor}
}

// Enqueue queues processing of uploadID. The caller's bearer token travels with
// the task so the backend sees the same user.
func (s *ProcessService) Enqueue(ctx context.Context, uploadID int, userID string) (*model.ProcessTicket, error) {
	token, _ := auth.BearerFromContext(ctx)
	task, err := NewProcessTask(ProcessPayload{UploadID: uploadID, RequestedBy: userID, Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	info, err := s.queue.EnqueueContext(ctx, task,
		asynq.Queue(QueueETL),
		asynq.MaxRetry(0),
		asynq.Unique(s.uniqueFor),
		asynq.Timeout(s.uniqueFor),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ProcessTicket{
		TaskID:   info.ID,
		UploadID: uploadID,
		Channel:  model.UploadChannel(uploadID),
		QueuedAt: time.Now().UTC(),
	}, nil
}

// RecordOutcome stores the result of a processing run (called by worker)
func (s *ProcessService) RecordOutcome(ctx context.Context, outcome *model.ProcessOutcome) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, outcomeKey(outcome.UploadID), data, outcomeTTL).Err()
}

// Outcome returns the last recorded processing result of an upload
func (s *ProcessService) Outcome(ctx context.Context, uploadID int) (*model.ProcessOutcome, error) {
	if s.redis == nil {
		return nil, ErrNoOutcome
	}
	data, err := s.redis.Get(ctx, outcomeKey(uploadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoOutcome
		}
		return nil, err
	}

	var outcome model.ProcessOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func outcomeKey(uploadID int) string {
	return fmt.Sprintf("etl:process:%d", uploadID)
}

func NewProcessTask(payload ProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcessUpload, data), nil
}
