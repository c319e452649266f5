package authapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenPair is an access/refresh credential pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginRequest is the first step of the two-step login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	IPAddress  string `json:"ipAddress"`
	DeviceType string `json:"deviceType"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// User is the principal record returned by the backend.
type User struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username,omitempty"`
	Name          string `json:"name,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Role          string `json:"role"`
	OAuthProvider string `json:"oauthProvider,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
}

// DisplayName picks the most human-friendly name the record carries.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// tokenFields accepts both snake_case and camelCase token names.
type tokenFields struct {
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token"`
	AccessTokenCamel  string `json:"accessToken"`
	RefreshTokenCamel string `json:"refreshToken"`
}

func (f tokenFields) pair() TokenPair {
	p := TokenPair{AccessToken: f.AccessToken, RefreshToken: f.RefreshToken}
	if p.AccessToken == "" {
		p.AccessToken = f.AccessTokenCamel
	}
	if p.RefreshToken == "" {
		p.RefreshToken = f.RefreshTokenCamel
	}
	return p
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Token response shapes.
const (
	ShapeAuto     = "auto"
	ShapeFlat     = "flat"
	ShapeEnvelope = "envelope"
)

// decodeTokenPair extracts a token pair from body. ShapeEnvelope reads
// {"data": {...}}, ShapeFlat reads the top level, ShapeAuto prefers the
// envelope and falls back to the top level.
func decodeTokenPair(body []byte, shape string) (TokenPair, error) {
	var flat, nested tokenFields
	if shape != ShapeEnvelope {
		if err := json.Unmarshal(body, &flat); err != nil {
			return TokenPair{}, fmt.Errorf("decoding token response: %w", err)
		}
	}
	if shape != ShapeFlat {
		var env dataEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return TokenPair{}, fmt.Errorf("decoding token response: %w", err)
		}
		if isObject(env.Data) {
			if err := json.Unmarshal(env.Data, &nested); err != nil {
				return TokenPair{}, fmt.Errorf("decoding token response data: %w", err)
			}
		}
	}

	var p TokenPair
	switch shape {
	case ShapeFlat:
		p = flat.pair()
	case ShapeEnvelope:
		p = nested.pair()
	default:
		if p = nested.pair(); p.AccessToken == "" {
			p = flat.pair()
		}
	}
	if p.AccessToken == "" {
		return TokenPair{}, fmt.Errorf("token response has no access token")
	}
	return p, nil
}

// decodeData unmarshals body into v, unwrapping a {"data": {...}} envelope
// when present.
func decodeData(body []byte, v any) error {
	var env dataEnvelope
	if err := json.Unmarshal(body, &env); err == nil && isObject(env.Data) {
		return json.Unmarshal(env.Data, v)
	}
	return json.Unmarshal(body, v)
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// backendMessage returns the "message" field of an error body, if any.
func backendMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	return strings.TrimSpace(m.Message)
}
