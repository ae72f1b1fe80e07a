package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiswaca/etl-console/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_ObserverMessages(t *testing.T) {
	h := startHub(t)
	c := &Client{Channel: "job-1", Send: make(chan []byte, 8)}
	h.Register(c)
	require.Eventually(t, func() bool { return h.Subscribers("job-1") == 1 }, time.Second, time.Millisecond)

	h.LineAppended("job-1", 0, "Initializing pipeline v2.4...")
	h.JobChanged(model.IngestionJob{ID: "job-1", Status: model.IngestionDone})
	h.LineAppended("other", 0, "ignored")

	var line model.WSLogMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &line))
	assert.Equal(t, model.WSMessageTypeLog, line.Type)
	assert.Equal(t, "Initializing pipeline v2.4...", line.Line)

	var status model.WSStatusMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &status))
	assert.Equal(t, model.WSMessageTypeStatus, status.Type)
	assert.Equal(t, model.IngestionDone, status.Job.Status)

	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_SubscribeSendsStateAfterRegistering(t *testing.T) {
	h := startHub(t)
	c := &Client{Channel: "job-2", Send: make(chan []byte, 8)}

	var subscribed int
	h.Subscribe(c, func() interface{} {
		subscribed = h.Subscribers("job-2")
		// a change landing while the state is read is queued, not lost
		h.LineAppended("job-2", 1, "during")
		return model.WSStatusMessage{
			Type:  model.WSMessageTypeStatus,
			JobID: "job-2",
			Job:   model.IngestionJob{ID: "job-2", Status: model.IngestionProcessing, LogLines: []string{"before"}},
		}
	})

	var status model.WSStatusMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &status))
	assert.Equal(t, 1, subscribed)
	assert.Equal(t, model.WSMessageTypeStatus, status.Type)
	assert.Equal(t, []string{"before"}, status.Job.LogLines)

	var line model.WSLogMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &line))
	assert.Equal(t, 1, line.Index)
	assert.Equal(t, "during", line.Line)

	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UploadChannel(t *testing.T) {
	h := startHub(t)
	channel := model.UploadChannel(7)
	assert.Equal(t, "upload-7", channel)

	c := &Client{Channel: channel, Send: make(chan []byte, 8)}
	h.Register(c)
	require.Eventually(t, func() bool { return h.Subscribers(channel) == 1 }, time.Second, time.Millisecond)

	h.BroadcastProgress(channel, model.UploadProcessing, "processing")
	h.BroadcastError(channel, "PROCESSING_FAILED", "bad header")

	var progress model.WSProgressMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &progress))
	assert.Equal(t, model.UploadProcessing, progress.Status)

	var failure model.WSErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &failure))
	assert.Equal(t, "bad header", failure.Error.Message)
}

func TestHub_UnregisterAndStop(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	a := &Client{Channel: "j", Send: make(chan []byte, 1)}
	b := &Client{Channel: "j", Send: make(chan []byte, 1)}
	h.Register(a)
	h.Register(b)
	h.Unregister(a)
	require.Eventually(t, func() bool { return h.Subscribers("j") == 1 }, time.Second, time.Millisecond)

	_, open := <-a.Send
	assert.False(t, open)

	h.Stop()
	<-done
	_, open = <-b.Send
	assert.False(t, open)

	// no goroutine is left to receive; neither call may block
	h.Register(&Client{Channel: "j", Send: make(chan []byte)})
	h.JobChanged(model.IngestionJob{ID: "j"})
}
