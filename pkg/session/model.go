package session

import "time"

// Phase is the lifecycle phase of a session record. It is one of Empty,
// LoginPending or Authenticated.
type Phase interface {
	isPhase()
}

// Empty is a record without a login in flight and without tokens.
type Empty struct{}

// LoginPending is a login attempt that was started but has not yet yielded tokens.
type LoginPending struct {
	State        string // Anti-CSRF nonce sent to the authorization endpoint
	CodeVerifier string // PKCE verifier bound to the code challenge
	Code         string // Authorization code, set once the callback arrived
}

// Authenticated is an established session. All fields come from one token response.
type Authenticated struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time // When IDToken and AccessToken become invalid
}

func (Empty) isPhase()         {}
func (LoginPending) isPhase()  {}
func (Authenticated) isPhase() {}

// PhaseName returns a short label for logs and the status command.
func PhaseName(p Phase) string {
	switch p.(type) {
	case LoginPending:
		return "login-pending"
	case Authenticated:
		return "authenticated"
	default:
		return "empty"
	}
}
