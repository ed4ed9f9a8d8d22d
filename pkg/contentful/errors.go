package contentful

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
)

var (
	ErrInvalidConfig = errors.New("contentful: invalid client configuration")
	ErrNotFound      = errors.New("contentful: not found")
	ErrConflict      = errors.New("contentful: version conflict")
	ErrRateLimited   = errors.New("contentful: rate limited")
)

// APIError is the decoded error document returned by the management API.
type APIError struct {
	Status    int             `json:"-"`
	ID        string          `json:"-"`
	Message   string          `json:"message"`
	RequestID string          `json:"requestId"`
	Details   json.RawMessage `json:"details,omitempty"`

	retryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("contentful: status=%d id=%s: %s", e.Status, e.ID, e.Message)
	}
	return fmt.Sprintf("contentful: status=%d: %s", e.Status, e.Message)
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var doc struct {
		Sys struct {
			ID string `json:"id"`
		} `json:"sys"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		apiErr.Message = truncateString(string(body), maxErrorBody)
		return apiErr
	}
	apiErr.ID = doc.Sys.ID
	apiErr.Message = doc.Message
	apiErr.RequestID = doc.RequestID
	apiErr.Details = doc.Details
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}
