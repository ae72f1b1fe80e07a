package e2e

import (
	"net/http"
	"testing"
)

func TestUploads_List(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/etl/uploads?page=1", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["count"] != float64(1) {
		t.Errorf("expected count 1, got %v", body["count"])
	}
	results, _ := body["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("expected one record, got %v", body["results"])
	}
}

func TestUploads_ListInvalidStatus(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/etl/uploads?status=archived", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUploads_GetNotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/etl/uploads/99", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
	if body := parseJSON(t, resp); errorCode(body) != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", body)
	}
}

func TestUploads_ProcessRequiresAdmin(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/etl/uploads/7/process", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusForbidden)
	if len(ta.queue.tasks) != 0 {
		t.Error("expected nothing to be queued")
	}
}

func TestUploads_ProcessQueued(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAdminRequest(t, ta.app, http.MethodPost, "/api/etl/uploads/7/process", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)
	body := parseJSON(t, resp)
	if body["channel"] != "upload-7" {
		t.Errorf("expected channel upload-7, got %v", body["channel"])
	}
	if len(ta.queue.tasks) != 1 {
		t.Fatalf("expected one queued task, got %d", len(ta.queue.tasks))
	}
}

func TestUploads_OutcomeNotRecorded(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/etl/uploads/7/outcome", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestUploads_Delete(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAdminRequest(t, ta.app, http.MethodDelete, "/api/etl/uploads/7", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNoContent)
}

func TestUploads_InvalidID(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/etl/uploads/abc", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}
