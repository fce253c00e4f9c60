// Package auth provides app-level token handling for the socket-mode API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// AppTokenPrefix is the prefix of every app-level token.
const AppTokenPrefix = "xapp-"

// ErrInvalidToken is returned for tokens that are not app-level tokens.
var ErrInvalidToken = errors.New("not an app-level token (expected xapp- prefix)")

// Credentials holds the app-level token used to open connections.
type Credentials struct {
	AppToken string
}

// LoadCredentials builds credentials from a token or, when token is empty,
// from the file at tokenPath.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	if token == "" && tokenPath != "" {
		var err error
		token, err = LoadToken(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("load app token: %w", err)
		}
	}
	if token == "" {
		return nil, fmt.Errorf("app token is required")
	}

	creds := &Credentials{AppToken: token}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// LoadToken reads a token from a file, ignoring surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// Validate checks the token shape.
func (c *Credentials) Validate() error {
	if !strings.HasPrefix(c.AppToken, AppTokenPrefix) {
		return ErrInvalidToken
	}
	return nil
}

// Authorize sets the bearer Authorization header on req.
func (c *Credentials) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.AppToken)
}

// Redacted returns a form of the token safe for logs.
func (c *Credentials) Redacted() string {
	return Redact(c.AppToken)
}

// Redact keeps the token's type prefix and hides the secret part.
func Redact(token string) string {
	const keep = 9 // "xapp-1-A1"
	if len(token) <= keep {
		return strings.Repeat("*", len(token))
	}
	return token[:keep] + "..."
}
