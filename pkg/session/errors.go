package session

import "github.com/openkcm/pkce-session/internal/serviceerr"

// Errors reported by the session manager. Match them with errors.Is.
var (
	ErrNotFound            = serviceerr.ErrNotFound
	ErrInvalidState        = serviceerr.ErrInvalidState
	ErrCodeAlreadyUsed     = serviceerr.ErrCodeAlreadyUsed
	ErrTokenExchangeFailed = serviceerr.ErrTokenExchangeFailed
	ErrStorageCorrupt      = serviceerr.ErrStorageCorrupt
	ErrRefreshBackoff      = serviceerr.ErrRefreshBackoff
	ErrInvalidAtHash       = serviceerr.ErrInvalidAtHash
)

// TokenError is the error payload returned by the token endpoint.
type TokenError = serviceerr.Error
