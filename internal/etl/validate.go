package etl

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hiswaca/etl-console/internal/model"
)

// ValidationKind names a local precondition that failed.
type ValidationKind string

const (
	MissingFile       ValidationKind = "MissingFile"
	MissingDataModel  ValidationKind = "MissingDataModel"
	UnknownDataModel  ValidationKind = "UnknownDataModel"
	UnsupportedFormat ValidationKind = "UnsupportedFormat"
	InvalidPeriod     ValidationKind = "InvalidPeriod"
)

// ValidationError is returned before anything is sent to the backend.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches any ValidationError of the same kind, so errors.Is(err, ErrMissingFile) works.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingFile       = &ValidationError{Kind: MissingFile, Message: "a source file is required"}
	ErrMissingDataModel  = &ValidationError{Kind: MissingDataModel, Message: "a data model is required"}
	ErrUnknownDataModel  = &ValidationError{Kind: UnknownDataModel, Message: "unknown data model"}
	ErrUnsupportedFormat = &ValidationError{Kind: UnsupportedFormat, Message: "unsupported file format"}
	ErrInvalidPeriod     = &ValidationError{Kind: InvalidPeriod, Message: "period must be formatted YYYY-MM"}
)

type periodField struct {
	Period string `validate:"omitempty,datetime=2006-01"`
}

// validateConfig checks cfg in a fixed order: file, data model, format, period.
// The resolved data model is returned on success.
func validateConfig(v *validator.Validate, catalog model.Catalog, cfg model.IngestionJobConfig) (model.DataModel, error) {
	if cfg.SourceFile == nil || cfg.SourceFile.Reader == nil || strings.TrimSpace(cfg.SourceFile.Name) == "" {
		return model.DataModel{}, ErrMissingFile
	}
	if strings.TrimSpace(cfg.DataModelID) == "" {
		return model.DataModel{}, ErrMissingDataModel
	}
	dm, ok := catalog.Lookup(cfg.DataModelID)
	if !ok {
		return model.DataModel{}, &ValidationError{
			Kind:    UnknownDataModel,
			Message: fmt.Sprintf("unknown data model %q", cfg.DataModelID),
		}
	}
	if !model.IsAcceptedFile(cfg.SourceFile.Name) {
		return model.DataModel{}, &ValidationError{
			Kind:    UnsupportedFormat,
			Message: fmt.Sprintf("unsupported file %q: accepted extensions are %s", cfg.SourceFile.Name, strings.Join(model.AcceptedExtensions, ", ")),
		}
	}
	if err := v.Struct(periodField{Period: strings.TrimSpace(cfg.Period)}); err != nil {
		return model.DataModel{}, &ValidationError{
			Kind:    InvalidPeriod,
			Message: fmt.Sprintf("invalid period %q: expected YYYY-MM", cfg.Period),
		}
	}
	return dm, nil
}
