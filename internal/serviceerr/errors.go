package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

// RFC6749 token endpoint error codes
const (
	CodeInvalidRequest         Code = "invalid_request"
	CodeInvalidClient          Code = "invalid_client"
	CodeInvalidGrant           Code = "invalid_grant"
	CodeUnauthorizedClient     Code = "unauthorized_client"
	CodeUnsupportedGrantType   Code = "unsupported_grant_type"
	CodeInvalidScope           Code = "invalid_scope"
	CodeAccessDenied           Code = "access_denied"
	CodeServerError            Code = "server_error"
	CodeTemporarilyUnavailable Code = "temporarily_unavailable"
)

// Session codes
const (
	CodeUnknown             Code = "unknown"
	CodeNotFound            Code = "not_found"
	CodeInvalidState        Code = "invalid_state"
	CodeCodeAlreadyUsed     Code = "code_already_used"
	CodeTokenExchangeFailed Code = "token_exchange_failed"
	CodeStorageCorrupt      Code = "storage_corrupt"
	CodeRefreshBackoff      Code = "refresh_backoff"
	CodeInvalidAtHashToken  Code = "invalid_at_hash_token"
)

// Error is an error carrying an OAuth style code. Token endpoint error
// payloads decode directly into it.
type Error struct {
	Err         Code   `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Err == e.Err
}

// HTTPStatus maps the code onto the status used when the error is rendered
// by the loopback callback server.
func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeInvalidState, CodeCodeAlreadyUsed,
		CodeInvalidClient, CodeInvalidGrant, CodeUnsupportedGrantType, CodeInvalidScope:
		return http.StatusBadRequest
	case CodeUnauthorizedClient, CodeInvalidAtHashToken:
		return http.StatusUnauthorized
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTokenExchangeFailed:
		return http.StatusBadGateway
	case CodeTemporarilyUnavailable, CodeRefreshBackoff:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrUnknown             = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrNotFound            = &Error{Err: CodeNotFound, Description: "not found"}
	ErrInvalidState        = &Error{Err: CodeInvalidState, Description: "callback state does not match the login in flight"}
	ErrCodeAlreadyUsed     = &Error{Err: CodeCodeAlreadyUsed, Description: "authorization code was already exchanged"}
	ErrTokenExchangeFailed = &Error{Err: CodeTokenExchangeFailed, Description: "token exchange failed"}
	ErrStorageCorrupt      = &Error{Err: CodeStorageCorrupt, Description: "stored session record is unreadable"}
	ErrRefreshBackoff      = &Error{Err: CodeRefreshBackoff, Description: "token refresh is backing off after a failure"}
	ErrInvalidAtHash       = &Error{Err: CodeInvalidAtHashToken, Description: "access token does not match the id token at_hash"}
)

// HTTPStatus returns the status of the first *Error found in err's chain.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}

	return http.StatusInternalServerError
}
