package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/mocks"
	"github.com/hiswaca/etl-console/internal/model"
	"github.com/hiswaca/etl-console/internal/service"
)

type event struct {
	kind    string
	channel string
	status  model.UploadStatus
	message string
}

type fakeHub struct {
	mu     sync.Mutex
	events []event
}

func (h *fakeHub) BroadcastProgress(channel string, status model.UploadStatus, step string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "progress", channel: channel, status: status, message: step})
}

func (h *fakeHub) BroadcastComplete(channel string, result interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "complete", channel: channel})
}

func (h *fakeHub) BroadcastError(channel string, code, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "error", channel: channel, message: message})
}

func (h *fakeHub) last() event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

type memOutcomes struct {
	got []*model.ProcessOutcome
}

func (m *memOutcomes) RecordOutcome(_ context.Context, o *model.ProcessOutcome) error {
	m.got = append(m.got, o)
	return nil
}

func newTask(t *testing.T, id int, token string) *asynq.Task {
	t.Helper()
	task, err := service.NewProcessTask(service.ProcessPayload{UploadID: id, Token: token})
	require.NoError(t, err)
	return task
}

func TestProcessTask_Completes(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	hub := &fakeHub{}
	outcomes := &memOutcomes{}
	processed := 12

	api.EXPECT().ProcessUpload(gomock.Any(), 4).DoAndReturn(func(ctx context.Context, _ int) (*client.IngestionResponse, error) {
		token, ok := auth.BearerFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, "user-token", token)
		return &client.IngestionResponse{ProcessedRows: &processed}, nil
	})
	gomock.InOrder(
		api.EXPECT().GetUpload(gomock.Any(), 4).Return(&model.UploadRecord{ID: 4, Status: model.UploadProcessing, TotalRows: 12, ProcessedRows: 5}, nil),
		api.EXPECT().GetUpload(gomock.Any(), 4).Return(&model.UploadRecord{ID: 4, Status: model.UploadCompleted, TotalRows: 12, ProcessedRows: 12}, nil),
	)

	w := NewProcessWorker(api, hub, outcomes, time.Millisecond, time.Second)
	require.NoError(t, w.ProcessTask(context.Background(), newTask(t, 4, "user-token")))

	last := hub.last()
	assert.Equal(t, "complete", last.kind)
	assert.Equal(t, "upload-4", last.channel)
	require.Len(t, outcomes.got, 1)
	assert.Equal(t, model.UploadCompleted, outcomes.got[0].Status)
	assert.Equal(t, 12, outcomes.got[0].Result.Count)
}

func TestProcessTask_BackendRefusal(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	hub := &fakeHub{}

	api.EXPECT().ProcessUpload(gomock.Any(), 9).Return(nil, &client.APIError{StatusCode: 400, Detail: "Upload already processed"})

	w := NewProcessWorker(api, hub, nil, time.Millisecond, time.Second)
	err := w.ProcessTask(context.Background(), newTask(t, 9, ""))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	last := hub.last()
	assert.Equal(t, "error", last.kind)
	assert.Equal(t, "Upload already processed", last.message)
}

func TestProcessTask_FailedOnBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockPortalAPI(ctrl)
	hub := &fakeHub{}
	outcomes := &memOutcomes{}
	reason := "Invalid column header"

	api.EXPECT().ProcessUpload(gomock.Any(), 2).Return(&client.IngestionResponse{}, nil)
	api.EXPECT().GetUpload(gomock.Any(), 2).Return(&model.UploadRecord{ID: 2, Status: model.UploadFailed, ErrorMessage: &reason}, nil)

	w := NewProcessWorker(api, hub, outcomes, time.Millisecond, time.Second)
	err := w.ProcessTask(context.Background(), newTask(t, 2, ""))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, reason, hub.last().message)
	require.Len(t, outcomes.got, 1)
	assert.Equal(t, model.UploadFailed, outcomes.got[0].Status)
	assert.Equal(t, reason, outcomes.got[0].Error)
}

func TestProcessTask_BadPayload(t *testing.T) {
	w := NewProcessWorker(nil, &fakeHub{}, nil, 0, 0)
	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeProcessUpload, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
