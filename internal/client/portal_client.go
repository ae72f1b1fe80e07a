package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/config"
	"github.com/hiswaca/etl-console/internal/model"
)

// PortalAPI is the slice of the data portal backend used by the console
type PortalAPI interface {
	Upload(ctx context.Context, req *UploadRequest) (*IngestionResponse, error)
	ListUploads(ctx context.Context, page int, status model.UploadStatus) (*model.UploadPage, error)
	GetUpload(ctx context.Context, id int) (*model.UploadRecord, error)
	ProcessUpload(ctx context.Context, id int) (*IngestionResponse, error)
	DownloadOutput(ctx context.Context, id int) (*Download, error)
	DeleteUpload(ctx context.Context, id int) error
}

// PortalClient implements PortalAPI over HTTP
type PortalClient struct {
	httpClient  *http.Client
	baseURL     string
	credentials auth.CredentialProvider
	limiter     *rate.Limiter
}

// UploadRequest is one multipart submission to /etl/upload/
type UploadRequest struct {
	FileName   string
	File       io.Reader
	FileFormat model.FileFormat
	Category   string
	Visibility model.Visibility
	Period     string
}

// IngestionResponse is the backend answer for upload and process calls
type IngestionResponse struct {
	UploadID          *int   `json:"upload_id,omitempty"`
	Message           string `json:"message,omitempty"`
	TotalRows         *int   `json:"total_rows,omitempty"`
	ProcessedRows     *int   `json:"processed_rows,omitempty"`
	FailedRows        *int   `json:"failed_rows,omitempty"`
	IndicatorsCreated *int   `json:"indicators_created,omitempty"`
	OutputFile        string `json:"output_file,omitempty"`
}

// Result maps the response to the console result. processed_rows wins over
// indicators_created; a missing or zero count is reported as 0.
func (r *IngestionResponse) Result() *model.IngestionResult {
	res := &model.IngestionResult{
		OutputFile: r.OutputFile,
		UploadID:   r.UploadID,
		TotalRows:  r.TotalRows,
		FailedRows: r.FailedRows,
		Message:    r.Message,
	}
	switch {
	case r.ProcessedRows != nil && *r.ProcessedRows > 0:
		res.Count = *r.ProcessedRows
	case r.IndicatorsCreated != nil && *r.IndicatorsCreated > 0:
		res.Count = *r.IndicatorsCreated
	}
	return res
}

// Download is a streamed output workbook. Callers must close Body.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	FileName      string
}

// NewPortalClient creates a new portal backend client
func NewPortalClient(cfg *config.PortalConfig, creds auth.CredentialProvider) *PortalClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &PortalClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		credentials: creds,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

// Upload sends one source file for ingestion
func (c *PortalClient) Upload(ctx context.Context, req *UploadRequest) (*IngestionResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}

	fields := [][2]string{
		{"file_name", req.FileName},
		{"file_format", string(req.FileFormat)},
		{"category", req.Category},
		{"visibility", string(req.Visibility)},
	}
	if req.Period != "" {
		fields = append(fields, [2]string{"period", req.Period})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/etl/upload/", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var result IngestionResponse
	if err := c.doJSON(httpReq, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListUploads returns one page of history. status filters through the
// per-status endpoints when set.
func (c *PortalClient) ListUploads(ctx context.Context, page int, status model.UploadStatus) (*model.UploadPage, error) {
	endpoint := "/etl/uploads/"
	if status != "" {
		endpoint = fmt.Sprintf("/etl/uploads/%s/", strings.ToLower(string(status)))
	}
	if page > 1 {
		endpoint += "?" + url.Values{"page": {strconv.Itoa(page)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var raw json.RawMessage
	if err := c.doJSON(req, &raw); err != nil {
		return nil, err
	}
	return decodeUploadPage(raw)
}

// GetUpload fetches one history record
func (c *PortalClient) GetUpload(ctx context.Context, id int) (*model.UploadRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/etl/uploads/%d/", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var record model.UploadRecord
	if err := c.doJSON(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ProcessUpload asks the backend to (re)process a pending upload
func (c *PortalClient) ProcessUpload(ctx context.Context, id int) (*IngestionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/etl/uploads/%d/process/", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result IngestionResponse
	if err := c.doJSON(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadOutput streams the generated workbook of an upload
func (c *PortalClient) DownloadOutput(ctx context.Context, id int) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/etl/uploads/%d/download/", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, errorFromResponse(req, resp.StatusCode, body)
	}

	return &Download{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		FileName:      fmt.Sprintf("etl_output_%d.xlsx", id),
	}, nil
}

// DeleteUpload removes a history record
func (c *PortalClient) DeleteUpload(ctx context.Context, id int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/etl/uploads/%d/", c.baseURL, id), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doJSON(req, nil)
}

// PollUpload polls an upload until the backend reports a terminal status.
// onPoll, when set, sees every intermediate record.
func (c *PortalClient) PollUpload(ctx context.Context, id int, interval, maxWait time.Duration, onPoll func(*model.UploadRecord)) (*model.UploadRecord, error) {
	return PollUpload(ctx, c, id, interval, maxWait, onPoll)
}

// PollUpload is the client-independent poll loop, usable with any PortalAPI.
func PollUpload(ctx context.Context, api PortalAPI, id int, interval, maxWait time.Duration, onPoll func(*model.UploadRecord)) (*model.UploadRecord, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		record, err := api.GetUpload(ctx, id)
		if err != nil {
			log.Printf("[Portal API] Poll upload #%d (id=%d) — error: %v", attempt, id, err)
			return nil, err
		}

		log.Printf("[Portal API] Poll upload #%d (id=%d) — status: %s", attempt, id, record.Status)
		if onPoll != nil {
			onPoll(record)
		}
		if record.Status.IsTerminal() {
			return record, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[Portal API] Poll upload (id=%d) — context cancelled", id)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("upload %d processing timed out after %v", id, maxWait)
}

// IsConfigured returns true if the client has a backend to talk to
func (c *PortalClient) IsConfigured() bool {
	return c.baseURL != ""
}

// send attaches the bearer token, waits for the rate limiter and executes req.
func (c *PortalClient) send(req *http.Request) (*http.Response, error) {
	token, err := c.token(req.Context())
	if err != nil {
		log.Printf("[Portal API] ✗ %s %s — no credentials: %v", req.Method, req.URL.String(), err)
		return nil, &APIError{StatusCode: http.StatusUnauthorized}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, &TransportError{Op: "rate limit wait", Err: err}
	}

	log.Printf("[Portal API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Portal API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return nil, &TransportError{Op: "send request", Err: err}
	}
	return resp, nil
}

func (c *PortalClient) token(ctx context.Context) (string, error) {
	if c.credentials == nil {
		return "", auth.ErrNoCredentials
	}
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", auth.ErrNoCredentials
	}
	return token, nil
}

// doJSON executes req and decodes a JSON answer into result (nil to discard).
func (c *PortalClient) doJSON(req *http.Request, result interface{}) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Portal API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return &TransportError{Op: "read response", Err: err}
	}

	log.Printf("[Portal API] ← %d %s %s — %d bytes", resp.StatusCode, req.Method, req.URL.String(), len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(req, resp.StatusCode, respBody)
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Portal API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.String(), err)
		return &TransportError{Op: "decode response", Err: err}
	}
	return nil
}

var errNonJSON = errors.New("non-JSON response")

// errorFromResponse turns a non-2xx answer into an APIError, or a TransportError
// when the body is not JSON (proxy error pages and the like).
func errorFromResponse(req *http.Request, status int, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && !json.Valid(trimmed) {
		log.Printf("[Portal API] ✗ %s %s — status %d with non-JSON body", req.Method, req.URL.String(), status)
		return &TransportError{Op: fmt.Sprintf("status %d", status), Err: errNonJSON}
	}
	apiErr := parseAPIError(status, trimmed)
	log.Printf("[Portal API] ✗ %s %s — %s", req.Method, req.URL.String(), apiErr.Error())
	return apiErr
}

// decodeUploadPage normalizes the list endpoints: either a bare array or a
// paginated {count, next, previous, results} envelope.
func decodeUploadPage(raw json.RawMessage) (*model.UploadPage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &model.UploadPage{Results: []model.UploadRecord{}}, nil
	}

	if trimmed[0] == '[' {
		var records []model.UploadRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, &TransportError{Op: "decode upload list", Err: err}
		}
		return &model.UploadPage{Count: len(records), Results: records}, nil
	}

	var page model.UploadPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, &TransportError{Op: "decode upload page", Err: err}
	}
	if page.Results == nil {
		page.Results = []model.UploadRecord{}
	}
	if page.Count == 0 {
		page.Count = len(page.Results)
	}
	return &page, nil
}
