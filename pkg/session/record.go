package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

// expiryLayout matches the JSON form of a JavaScript Date.
const expiryLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is the persisted state of one application's session.
// Load and Save are a filtered projection: only the recognized fields are
// ever read from or written to the store.
type Record struct {
	key   string
	store Store
	phase Phase
}

// recordJSON is the stored shape. Absent fields are written as null and the
// field order is fixed, so equal records always encode to equal bytes.
type recordJSON struct {
	State        *string `json:"state"`
	CodeVerifier *string `json:"codeVerifier"`
	Code         *string `json:"code"`
	IDToken      *string `json:"idToken"`
	AccessToken  *string `json:"accessToken"`
	RefreshToken *string `json:"refreshToken"`
	TokenType    *string `json:"tokenType"`
	TokenExpiry  *string `json:"tokenExpiry"`
}

// storedRecord accepts tokenExpiry as a timestamp string or epoch milliseconds.
type storedRecord struct {
	State        *string         `json:"state"`
	CodeVerifier *string         `json:"codeVerifier"`
	Code         *string         `json:"code"`
	IDToken      *string         `json:"idToken"`
	AccessToken  *string         `json:"accessToken"`
	RefreshToken *string         `json:"refreshToken"`
	TokenType    *string         `json:"tokenType"`
	TokenExpiry  json.RawMessage `json:"tokenExpiry"`
}

func NewRecord(key string, store Store) *Record {
	return &Record{
		key:   key,
		store: store,
		phase: Empty{},
	}
}

func (r *Record) Key() string {
	return r.key
}

func (r *Record) Phase() Phase {
	return r.phase
}

// SetPhase replaces the in-memory state. It does not persist.
func (r *Record) SetPhase(p Phase) {
	if p == nil {
		p = Empty{}
	}
	r.phase = p
}

// Load replaces the in-memory state with the stored one. The record is
// always left in a valid phase: a missing blob loads as Empty without error,
// an unreadable one loads as Empty and the error reports why.
func (r *Record) Load(ctx context.Context) error {
	r.phase = Empty{}

	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return nil
		}

		return errors.Join(serviceerr.ErrStorageCorrupt, fmt.Errorf("reading session record %q: %w", r.key, err))
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return errors.Join(serviceerr.ErrStorageCorrupt, fmt.Errorf("decoding session record %q: %w", r.key, err))
	}

	r.phase = stored.phase()

	return nil
}

// Save writes the recognized fields under the record key.
func (r *Record) Save(ctx context.Context) error {
	data, err := r.encode()
	if err != nil {
		return err
	}

	if err := r.store.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("writing session record %q: %w", r.key, err)
	}

	return nil
}

// Clear removes the stored blob and resets the record to Empty. The
// in-memory reset happens even when the store fails.
func (r *Record) Clear(ctx context.Context) error {
	r.phase = Empty{}

	if err := r.store.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("deleting session record %q: %w", r.key, err)
	}

	return nil
}

func (r *Record) encode() ([]byte, error) {
	var out recordJSON

	switch p := r.phase.(type) {
	case LoginPending:
		out.State = optional(p.State)
		out.CodeVerifier = optional(p.CodeVerifier)
		out.Code = optional(p.Code)
	case Authenticated:
		out.IDToken = optional(p.IDToken)
		out.AccessToken = optional(p.AccessToken)
		out.RefreshToken = optional(p.RefreshToken)
		out.TokenType = optional(p.TokenType)
		if !p.Expiry.IsZero() {
			out.TokenExpiry = optional(formatExpiry(p.Expiry))
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding session record: %w", err)
	}

	return data, nil
}

// phase normalizes the stored fields into exactly one variant. A refresh
// token wins over everything else; a state without a verifier is dropped.
func (s storedRecord) phase() Phase {
	switch {
	case value(s.RefreshToken) != "":
		return Authenticated{
			IDToken:      value(s.IDToken),
			AccessToken:  value(s.AccessToken),
			RefreshToken: value(s.RefreshToken),
			TokenType:    value(s.TokenType),
			Expiry:       parseExpiry(s.TokenExpiry),
		}
	case value(s.State) != "" && value(s.CodeVerifier) != "":
		return LoginPending{
			State:        value(s.State),
			CodeVerifier: value(s.CodeVerifier),
			Code:         value(s.Code),
		}
	default:
		return Empty{}
	}
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format(expiryLayout)
}

// parseExpiry returns the zero time for absent or unparseable values.
func parseExpiry(raw json.RawMessage) time.Time {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}

		return t
	}

	var millis float64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(int64(millis)).UTC()
	}

	return time.Time{}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func value(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
