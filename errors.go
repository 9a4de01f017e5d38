package idp

import (
	"net/http"

	"github.com/authplat/oidc-idp/server"
)

// OAuthError is the JSON error body of the OAuth endpoints, carrying
// the HTTP status to respond with.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// statusForCode maps OAuth error codes to HTTP statuses per RFC 6749
// §5.2 and RFC 6750 §3.1.
func statusForCode(code string) int {
	switch code {
	case server.ErrorCodeInvalidClient, server.ErrorCodeInvalidToken:
		return http.StatusUnauthorized
	case server.ErrorCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// wireError converts any error from the core into a wire-ready
// OAuthError. Non-protocol errors collapse into server_error so
// internal detail never reaches the client.
func wireError(err error) *OAuthError {
	if oe, ok := server.AsError(err); ok {
		return &OAuthError{
			Code:        oe.Code,
			Description: oe.Description,
			Status:      statusForCode(oe.Code),
		}
	}
	return &OAuthError{
		Code:        server.ErrorCodeServerError,
		Description: "internal server error",
		Status:      http.StatusInternalServerError,
	}
}
