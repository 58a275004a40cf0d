package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"qrguard/internal/models"
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Body    []byte
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend returned %d", e.Status)
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// NewAPIError builds an APIError from a status and the raw response body.
func NewAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: body}
	var env models.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil {
		e.Code = env.Code
		e.Message = env.Error
		if e.Message == "" {
			e.Message = env.Message
		}
		e.Details = env.Details
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports a 401 response.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// IsForbidden reports a 403 response.
func IsForbidden(err error) bool { return StatusOf(err) == http.StatusForbidden }

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// IsAuthFailure reports 401 or 403.
func IsAuthFailure(err error) bool { return IsUnauthorized(err) || IsForbidden(err) }
