// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them instead of
// parsing messages. Generic codes mirror HTTP status semantics. The webhook
// adds invalid_event for payloads that parse but do not describe a usable
// order, and fulfillment_failed for store errors that leave the event
// unprocessed (the caller should redeliver).
//
// Download denials deliberately share the generic not_found code: a client
// cannot tell an unknown order from a wrong email.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_event",
//	  "message": "customer_email: required"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidEvent      = "invalid_event"
	ErrCodeFulfillmentFailed = "fulfillment_failed"
)
