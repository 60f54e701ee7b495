// Package models - API response types and error codes.
//
// Every JSON response carries a top-level "success" flag so clients can branch
// without inspecting the status code. Rate limit rejections additionally carry
// retryAfterSeconds and a RATE_LIMIT_* code.
package models

import (
	"time"
)

// ErrorResponse is the body of every non-2xx response except rate limit
// rejections.
type ErrorResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// RateLimitResponse is the body of an HTTP 429 response.
type RateLimitResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
	Code              string `json:"code"`
}

// DataResponse wraps a successful payload.
type DataResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Error codes. RATE_LIMIT_* codes are part of the public contract of the
// registration and short link endpoints.
const (
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeBadRequest         = "BAD_REQUEST"
	ErrorCodeValidation         = "VALIDATION_ERROR"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
	ErrorCodeUnauthorized       = "UNAUTHORIZED"
	ErrorCodeForbidden          = "FORBIDDEN"
	ErrorCodeConflict           = "CONFLICT"
	ErrorCodeGone               = "GONE"
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	ErrorCodeRateLimitIP    = "RATE_LIMIT_IP"
	ErrorCodeRateLimitEmail = "RATE_LIMIT_EMAIL"
	ErrorCodeRateLimitUser  = "RATE_LIMIT_USER"
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewValidationErrorResponse reports field-level validation failures.
func NewValidationErrorResponse(details map[string]string) *ErrorResponse {
	resp := NewErrorResponse("Validation failed", ErrorCodeValidation)
	resp.Details = details
	return resp
}

func NewRateLimitResponse(message, code string, retryAfterSeconds int) *RateLimitResponse {
	return &RateLimitResponse{
		Success:           false,
		Message:           message,
		RetryAfterSeconds: retryAfterSeconds,
		Code:              code,
	}
}

func NewDataResponse(message string, data interface{}) *DataResponse {
	return &DataResponse{Success: true, Message: message, Data: data}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
	if status == StatusUnhealthy {
		h.Status = StatusUnhealthy
	}
}
