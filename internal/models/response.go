// Package models - API response types and error handling.
// All outgoing response structures share a consistent JSON shape; optional
// fields use omitempty and timestamps are RFC3339.
package models

import (
	"time"
)

// ErrorResponse provides structured error information with debugging context.
type ErrorResponse struct {
	Error     string    `json:"error"`                // Error type (always "error")
	Message   string    `json:"message"`              // Human-readable error description
	Code      string    `json:"code,omitempty"`       // Machine-readable error code
	Timestamp time.Time `json:"timestamp"`            // Error occurrence time
	RequestID string    `json:"request_id,omitempty"` // Unique request identifier
}

// RateLimitedResponse is the 429 body returned to metered callers that
// exceeded their window quota. RetryAfter mirrors the Retry-After header in
// whole seconds.
type RateLimitedResponse struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PlacementInfo describes a purchasable ad slot on a registered channel.
type PlacementInfo struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	Format      string    `json:"format"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Subscribers int       `json:"subscribers"`
	ListedAt    time.Time `json:"listed_at"`
}

type ListPlacementsResponse struct {
	Placements []PlacementInfo `json:"placements"`
	TotalCount int             `json:"total_count"`
}

type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// Health status constants.
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard error codes.
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Store unreachable under fail-closed policy
	ErrorCodeRateLimited        = "RATE_LIMIT_EXCEEDED" // 429: Window quota exhausted
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 405: Method not allowed
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
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
}
