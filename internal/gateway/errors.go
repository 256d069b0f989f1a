package gateway

import (
	"errors"
	"fmt"
)

// GenericErrorMessage is used when the server reports failure without saying why.
const GenericErrorMessage = "something went wrong"

// ErrNoSessionList is returned when the home page has no session-list element.
var ErrNoSessionList = errors.New("session list not found in page")

// errEndpointUnavailable marks a missing structured endpoint so callers can
// fall back to page scraping.
var errEndpointUnavailable = errors.New("endpoint unavailable")

// APIError is a response that decoded fine but reported success=false.
type APIError struct {
	Op         string // e.g. "create session"
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// ResponseError wraps a response the client could not make sense of.
type ResponseError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// ErrorText returns the text to show the user for err.
func ErrorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message == "" {
			return GenericErrorMessage
		}
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
