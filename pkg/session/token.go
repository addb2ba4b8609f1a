package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"

	maxTokenResponseSize = 1 << 20
)

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *Manager) exchangeCode(ctx context.Context, pending LoginPending, redirectURI string) (tokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", grantAuthorizationCode)
	data.Set("client_id", m.cfg.ClientID)
	data.Set("code", pending.Code)
	data.Set("code_verifier", pending.CodeVerifier)
	data.Set("redirect_uri", redirectURI)

	return m.requestTokens(ctx, grantAuthorizationCode, data)
}

func (m *Manager) exchangeRefreshToken(ctx context.Context, refreshToken string) (tokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", grantRefreshToken)
	data.Set("client_id", m.cfg.ClientID)
	data.Set("refresh_token", refreshToken)

	return m.requestTokens(ctx, grantRefreshToken, data)
}

func (m *Manager) requestTokens(ctx context.Context, grant string, data url.Values) (tokenResponse, error) {
	start := time.Now()
	tokens, err := m.postTokenRequest(ctx, data)
	if err == nil {
		err = checkTokens(grant, tokens)
	}
	m.metrics.recordExchange(ctx, grant, err, time.Since(start))
	if err != nil {
		return tokenResponse{}, err
	}

	return tokens, nil
}

// checkTokens rejects a successful response that cannot become a session.
func checkTokens(grant string, tokens tokenResponse) error {
	if grant == grantAuthorizationCode && tokens.RefreshToken == "" {
		return fmt.Errorf("%w: response carries no refresh_token", serviceerr.ErrTokenExchangeFailed)
	}

	if err := verifyAccessToken(tokens.IDToken, tokens.AccessToken); err != nil {
		return fmt.Errorf("%w: %w", serviceerr.ErrTokenExchangeFailed, err)
	}

	return nil
}

func (m *Manager) postTokenRequest(ctx context.Context, data url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: creating request: %w", serviceerr.ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: executing request: %w", serviceerr.ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: reading response: %w", serviceerr.ErrTokenExchangeFailed, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// The payload comes first so that errors.As finds it before the sentinel.
		return tokenResponse{}, fmt.Errorf("%w: %w: %w", &statusError{code: resp.StatusCode}, decodeTokenError(body), serviceerr.ErrTokenExchangeFailed)
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return tokenResponse{}, fmt.Errorf("%w: decoding response: %w", serviceerr.ErrTokenExchangeFailed, err)
	}

	if tokens.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("%w: response carries no access_token", serviceerr.ErrTokenExchangeFailed)
	}

	return tokens, nil
}

// statusError carries the status of a failed token endpoint response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d", e.code)
}

// decodeTokenError turns an RFC 6749 error body into a *TokenError. Bodies
// that are not such a payload are kept verbatim as the description.
func decodeTokenError(body []byte) error {
	var payload TokenError
	if err := json.Unmarshal(body, &payload); err == nil && payload.Err != "" {
		return &payload
	}

	description := strings.TrimSpace(string(body))
	if description == "" {
		return errors.New("empty error response")
	}

	return &TokenError{Err: serviceerr.CodeUnknown, Description: description}
}

// expiryFrom returns now + expiresIn seconds at millisecond precision, the
// precision the record persists.
func (m *Manager) expiryFrom(expiresIn int64) time.Time {
	return m.now().Add(time.Duration(expiresIn) * time.Second).Truncate(time.Millisecond)
}
