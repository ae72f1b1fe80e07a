package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// TransportError means the backend could not be reached or answered with something
// that was not JSON.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a structured non-2xx answer from the portal backend.
type APIError struct {
	StatusCode int
	Detail     string
	ErrorText  string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal API error (status %d): %s", e.StatusCode, e.Message())
}

// Message returns the best human-readable text: detail, then error, then the first
// field error, then a generic message for the status code.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.ErrorText != "" {
		return e.ErrorText
	}
	if msg := firstFieldMessage(e.Fields); msg != "" {
		return msg
	}
	return GenericMessage(e.StatusCode)
}

func firstFieldMessage(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k, msgs := range fields {
		if len(msgs) > 0 && msgs[0] != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	key := keys[0]
	if key == "non_field_errors" {
		return fields[key][0]
	}
	return key + ": " + fields[key][0]
}

// GenericMessage is the fallback text when the backend gave no usable message.
func GenericMessage(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "The submitted data is invalid"
	case status == http.StatusUnauthorized:
		return "Authentication required"
	case status == http.StatusForbidden:
		return "You do not have permission to perform this action"
	case status == http.StatusNotFound:
		return "Resource not found"
	case status >= 500:
		return "Server error, please try again later"
	default:
		return "Network error, please check your connection"
	}
}

// UserMessage picks the text to show for any error returned by PortalClient.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return GenericMessage(0)
	}
	return err.Error()
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// parseAPIError decodes a non-2xx body. Bodies that are not JSON objects still
// produce an APIError carrying only the status code.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apiErr
	}

	for key, value := range raw {
		switch key {
		case "detail":
			apiErr.Detail = asText(value)
		case "error":
			apiErr.ErrorText = asText(value)
		default:
			if msgs := asTextList(value); len(msgs) > 0 {
				if apiErr.Fields == nil {
					apiErr.Fields = make(map[string][]string)
				}
				apiErr.Fields[key] = msgs
			}
		}
	}
	return apiErr
}

func asText(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if msgs := asTextList(value); len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// asTextList accepts ["msg", ...] as used by DRF field validation.
func asTextList(value json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(value, &list); err != nil {
		return nil
	}
	out := list[:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
