// Package auth provides bearer token helpers for the signaling API and relay.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const bearerPrefix = "Bearer "

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// SetBearer sets the Authorization header. An empty token leaves h untouched.
func SetBearer(h http.Header, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	h.Set("Authorization", bearerPrefix+token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// Authorize validates the request's bearer token with v.
func Authorize(r *http.Request, v Validator) error {
	token, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return ErrUnauthorized
	}
	return v.Validate(token)
}
