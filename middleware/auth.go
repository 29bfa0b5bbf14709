package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	nethttp "net/http"
	"strings"
)

const (
	// HeaderAPIToken carries one or more comma-separated API tokens
	HeaderAPIToken = "X-Cybozu-API-Token"

	// HeaderCybozuAuthorization carries base64(user:password) password auth
	HeaderCybozuAuthorization = "X-Cybozu-Authorization"
)

// ErrNoCredentials is returned by credentials that produce no headers.
var ErrNoCredentials = errors.New("no credentials configured")

// Credentials produce the header name/value pairs that authenticate a request.
type Credentials interface {
	Headers() (nethttp.Header, error)
}

// CredentialsFunc adapts a function to the Credentials interface
type CredentialsFunc func() (nethttp.Header, error)

// Headers calls f()
func (f CredentialsFunc) Headers() (nethttp.Header, error) {
	return f()
}

type apiTokens []string

// APITokens authenticates with one or more app API tokens.
func APITokens(tokens ...string) Credentials {
	return apiTokens(tokens)
}

func (t apiTokens) Headers() (nethttp.Header, error) {
	nonEmpty := make([]string, 0, len(t))
	for _, tok := range t {
		if tok = strings.TrimSpace(tok); tok != "" {
			nonEmpty = append(nonEmpty, tok)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, ErrNoCredentials
	}
	h := make(nethttp.Header, 1)
	h.Set(HeaderAPIToken, strings.Join(nonEmpty, ","))
	return h, nil
}

type password struct {
	username string
	password string
}

// Password authenticates with a kintone user name and password.
func Password(username, pass string) Credentials {
	return password{username: username, password: pass}
}

func (p password) Headers() (nethttp.Header, error) {
	if p.username == "" {
		return nil, ErrNoCredentials
	}
	h := make(nethttp.Header, 1)
	h.Set(HeaderCybozuAuthorization, base64.StdEncoding.EncodeToString([]byte(p.username+":"+p.password)))
	return h, nil
}

type basicAuth struct {
	username string
	password string
}

// BasicAuth sets the standard Authorization header, used in front of
// kintone domains protected by basic authentication.
func BasicAuth(username, pass string) Credentials {
	return basicAuth{username: username, password: pass}
}

func (b basicAuth) Headers() (nethttp.Header, error) {
	if b.username == "" {
		return nil, ErrNoCredentials
	}
	h := make(nethttp.Header, 1)
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(b.username+":"+b.password)))
	return h, nil
}

type combined []Credentials

// CombineCredentials merges the headers of several credentials. Later
// credentials win on conflicting header names.
func CombineCredentials(creds ...Credentials) Credentials {
	return combined(creds)
}

func (c combined) Headers() (nethttp.Header, error) {
	out := make(nethttp.Header)
	for _, cred := range c {
		if cred == nil {
			continue
		}
		h, err := cred.Headers()
		if err != nil {
			return nil, err
		}
		for key, values := range h {
			out[key] = values
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCredentials
	}
	return out, nil
}

// AuthLayer injects credential headers into a copy of each request.
type AuthLayer struct {
	creds Credentials
}

// NewAuthLayer creates an auth layer
func NewAuthLayer(creds Credentials) *AuthLayer {
	return &AuthLayer{creds: creds}
}

// Wrap implements Layer
func (l *AuthLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if l.creds == nil {
			return next.Do(ctx, req)
		}
		h, err := l.creds.Headers()
		if err != nil {
			return nil, NewValidationError(req.Operation(), FieldError{Field: "credentials", Message: err.Error()})
		}
		return next.Do(ctx, req.WithHeaders(h))
	})
}
