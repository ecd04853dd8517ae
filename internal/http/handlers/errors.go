// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// Codes are lowercase snake_case and stable: webhook senders and monitoring
// branch on them programmatically, the message is for humans. Handlers pick
// the most specific code and pass it to fail() with the matching HTTP status.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeForbidden   = "forbidden"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeMissingOrderID   = "missing_order_id"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeIngestFailed     = "ingest_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
