// Package errors provides structured error handling for the labeler.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Configuration errors (fatal at startup only)
	CodeConfigMissingDID        Code = "CONFIG_MISSING_DID"
	CodeConfigMissingSigningKey Code = "CONFIG_MISSING_SIGNING_KEY"

	// Request errors
	CodeSubjectRequired Code = "SUBJECT_REQUIRED"
	CodeInvalidRequest  Code = "INVALID_REQUEST"

	// Ledger errors
	CodeUnknownTrigger     Code = "LABEL_UNKNOWN_TRIGGER"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"

	// Stream errors
	CodeMalformedEvent Code = "MALFORMED_EVENT"
)

// HTTPStatus maps the code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSubjectRequired, CodeInvalidRequest, CodeMalformedEvent:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
