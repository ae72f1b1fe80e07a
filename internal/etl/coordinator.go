package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/model"
)

// Submitter issues the ingestion request. client.PortalClient implements it.
type Submitter interface {
	Upload(ctx context.Context, req *client.UploadRequest) (*client.IngestionResponse, error)
}

// SubmitErrorKind separates unreachable backends from structured refusals.
type SubmitErrorKind string

const (
	TransportFailure SubmitErrorKind = "transport"
	BackendFailure   SubmitErrorKind = "backend"
)

// SubmitError is a failed submission with the best message available for display.
type SubmitError struct {
	Kind       SubmitErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("submission failed (%s): %s", e.Kind, e.Message)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Coordinator validates a job configuration and turns it into exactly one backend call.
type Coordinator struct {
	api      Submitter
	catalog  model.Catalog
	validate *validator.Validate
}

// NewCoordinator builds a coordinator. A nil validator gets a fresh one.
func NewCoordinator(api Submitter, catalog model.Catalog, v *validator.Validate) *Coordinator {
	if v == nil {
		v = validator.New()
	}
	if len(catalog) == 0 {
		catalog = model.DefaultCatalog
	}
	return &Coordinator{api: api, catalog: catalog, validate: v}
}

// Catalog returns the data models this coordinator accepts.
func (c *Coordinator) Catalog() model.Catalog {
	return c.catalog
}

// Validate reports the first failed precondition, or nil.
func (c *Coordinator) Validate(cfg model.IngestionJobConfig) error {
	_, err := validateConfig(c.validate, c.catalog, cfg)
	return err
}

// Resolve validates cfg and returns the selected data model.
func (c *Coordinator) Resolve(cfg model.IngestionJobConfig) (model.DataModel, error) {
	return validateConfig(c.validate, c.catalog, cfg)
}

// Submit sends cfg to the backend. Invalid configurations are refused without any
// network call. Failures come back as *ValidationError or *SubmitError.
func (c *Coordinator) Submit(ctx context.Context, cfg model.IngestionJobConfig) (*model.IngestionResult, error) {
	dm, err := validateConfig(c.validate, c.catalog, cfg)
	if err != nil {
		return nil, err
	}

	req := &client.UploadRequest{
		FileName:   cfg.SourceFile.Name,
		File:       cfg.SourceFile.Reader,
		FileFormat: model.FileFormatFromName(cfg.SourceFile.Name),
		Category:   dm.Category(),
		Visibility: model.VisibilityFromFlag(cfg.Public),
		Period:     strings.TrimSpace(cfg.Period),
	}

	resp, err := c.api.Upload(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	return resp.Result(), nil
}

func classify(err error) *SubmitError {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return &SubmitError{
			Kind:       BackendFailure,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message(),
			Err:        err,
		}
	}
	return &SubmitError{
		Kind:    TransportFailure,
		Message: client.GenericMessage(0),
		Err:     err,
	}
}
