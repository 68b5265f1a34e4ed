package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for backend calls. APIError unwraps to one of them.
var (
	ErrUnauthorized = errors.New("backend rejected the bearer token")
	ErrNotFound     = errors.New("backend resource not found")
	ErrRejected     = errors.New("backend rejected the request")
	ErrServer       = errors.New("backend server error")
	ErrTimeout      = errors.New("backend request timed out")
	ErrUnavailable  = errors.New("backend unreachable")
)

// APIError is a non-2xx backend reply.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s: %d: %s", e.Op, e.Status, msg)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}

// decodeAPIError understands both `{"message": "..."}` and the envelope
// `{"error": {"code": "...", "message": "..."}}`.
func decodeAPIError(op string, status int, body []byte) *APIError {
	apiErr := &APIError{Op: op, Status: status}

	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 200 {
			apiErr.Message = apiErr.Message[:200]
		}
		return apiErr
	}
	apiErr.Message = payload.Message

	if len(payload.Error) > 0 {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil {
			apiErr.Code = nested.Code
			if nested.Message != "" {
				apiErr.Message = nested.Message
			}
		} else {
			var flat string
			if json.Unmarshal(payload.Error, &flat) == nil && apiErr.Message == "" {
				apiErr.Message = flat
			}
		}
	}
	return apiErr
}
