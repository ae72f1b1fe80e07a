package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/config"
	"github.com/hiswaca/etl-console/internal/etl"
	"github.com/hiswaca/etl-console/internal/handler"
	"github.com/hiswaca/etl-console/internal/middleware"
	"github.com/hiswaca/etl-console/internal/model"
	"github.com/hiswaca/etl-console/internal/service"
	ws "github.com/hiswaca/etl-console/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	ingestion *service.IngestionService
	portal    *fakePortal
	queue     *recordingQueue
}

// fakePortal stands in for the portal backend. Files whose name contains
// "bad" are refused the way the backend refuses malformed headers.
type fakePortal struct {
	mu      sync.Mutex
	uploads []map[string]string
	tokens  []string
}

func (p *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokens = append(p.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/etl/upload/":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"Malformed multipart body"}`)
			return
		}
		fields := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		p.mu.Lock()
		p.uploads = append(p.uploads, fields)
		p.mu.Unlock()

		if strings.Contains(fields["file_name"], "bad") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"Invalid column header"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"upload_id":7,"processed_rows":42,"output_file":"etl_output_7.xlsx"}`)

	case r.Method == http.MethodGet && r.URL.Path == "/etl/uploads/":
		_, _ = io.WriteString(w, `{"count":1,"results":[{"id":7,"file_name":"sante.csv","file_format":"CSV","status":"COMPLETED","total_rows":42,"processed_rows":42,"uploaded_at":"2026-10-01T08:00:00Z"}]}`)

	case r.Method == http.MethodGet && r.URL.Path == "/etl/uploads/99/":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Not found."}`)

	case r.Method == http.MethodDelete && r.URL.Path == "/etl/uploads/7/":
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{}`)
	}
}

func (p *fakePortal) lastUpload() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.uploads) == 0 {
		return nil
	}
	return p.uploads[len(p.uploads)-1]
}

func (p *fakePortal) lastToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tokens) == 0 {
		return ""
	}
	return p.tokens[len(p.tokens)-1]
}

// recordingQueue replaces the asynq client so no Redis is needed
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-e2e", Queue: service.QueueETL}, nil
}

// setupApp creates a Fiber app wired like main.go against an in-process portal
// backend. Redis is not used: rate limiting is disabled and outcomes are not kept.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	portal := &fakePortal{}
	backend := httptest.NewServer(portal)
	t.Cleanup(backend.Close)

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	portalClient := client.NewPortalClient(&config.PortalConfig{BaseURL: backend.URL, Timeout: 5}, auth.ForwardedCredentials{})

	coordinator := etl.NewCoordinator(portalClient, model.DefaultCatalog, validate)
	ingestionService := service.NewIngestionService(coordinator, service.IngestionOptions{
		Narrator: etl.Narrator{Cadence: time.Millisecond},
		Observer: hub,
	})
	t.Cleanup(func() { _ = ingestionService.Close(context.Background()) })

	queue := &recordingQueue{}
	historyService := service.NewHistoryService(portalClient, nil, 0)
	processService := service.NewProcessService(queue, nil, 0)

	etlHandler := handler.NewETLHandler(ingestionService, validate)
	uploadsHandler := handler.NewUploadsHandler(historyService, processService, validate)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 55 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"portal": portalClient.IsConfigured(),
				"r2":     false,
				"auth":   true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", authMiddleware.Authenticate())
	etlAPI := api.Group("/etl")
	etlAPI.Get("/models", etlHandler.Models)

	jobs := etlAPI.Group("/jobs")
	jobs.Post("/", rateLimiter.SubmitLimit(10000), etlHandler.Submit)
	jobs.Get("/current", etlHandler.Current)
	jobs.Post("/current/reset", etlHandler.Reset)
	jobs.Get("/:jobId", etlHandler.Job)

	uploads := etlAPI.Group("/uploads", rateLimiter.ReadLimit(10000))
	uploads.Get("/", uploadsHandler.List)
	uploads.Get("/:id", uploadsHandler.Get)
	uploads.Get("/:id/outcome", uploadsHandler.Outcome)
	uploads.Post("/:id/process", middleware.RequireRole(model.RoleAdmin), uploadsHandler.Process)
	uploads.Delete("/:id", middleware.RequireRole(model.RoleAdmin), uploadsHandler.Delete)

	return &testApp{app: app, ingestion: ingestionService, portal: portal, queue: queue}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := auth.SignLegacyToken(testJWTSecret, auth.LegacyClaims{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as a partner user.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "partner-1", model.RolePartner),
	})
}

// doAdminRequest performs a request as an admin user.
func doAdminRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, "admin-1", model.RoleAdmin),
	})
}

// doSubmit posts a multipart submission. An empty fileName sends no file part.
func doSubmit(t *testing.T, app *fiber.App, token, fileName string, fields map[string]string) (*http.Response, error) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		_, _ = io.WriteString(part, "region,value\nnord,12\n")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/etl/jobs", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope
func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}
