package server

import (
	"errors"
	"fmt"
)

// OAuth 2.0 error codes (RFC 6749 §5.2, RFC 7009 §2.2.1).
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
)

// Error is an OAuth 2.0 protocol error. The description is safe to
// return to clients; operational detail belongs in logs, not here.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// InvalidRequest reports a malformed or incomplete request.
func InvalidRequest(description string) *Error {
	return &Error{Code: ErrorCodeInvalidRequest, Description: description}
}

// InvalidClient reports failed client authentication.
func InvalidClient(description string) *Error {
	return &Error{Code: ErrorCodeInvalidClient, Description: description}
}

// InvalidGrant reports an invalid, expired, or already-used grant.
func InvalidGrant(description string) *Error {
	return &Error{Code: ErrorCodeInvalidGrant, Description: description}
}

// Unauthorized reports a token that failed verification.
func Unauthorized(description string) *Error {
	return &Error{Code: ErrorCodeInvalidToken, Description: description}
}

// UnsupportedGrantType reports an unknown grant_type value.
func UnsupportedGrantType(description string) *Error {
	return &Error{Code: ErrorCodeUnsupportedGrantType, Description: description}
}

// ServerError reports an internal failure without leaking detail.
func ServerError(description string) *Error {
	return &Error{Code: ErrorCodeServerError, Description: description}
}

// AsError unwraps err into a protocol *Error if it is one.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
