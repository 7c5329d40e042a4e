package auth

import (
	"encoding/base64"
	"errors"
	"strings"
)

const scheme = "Basic"

// ErrMalformedCredentials is returned when an Authorization header is not a valid Basic credential.
var ErrMalformedCredentials = errors.New("malformed basic credentials")

// Token is the opaque credential attached to every ledger request.
type Token string

// Encode derives the Basic-scheme token for a username/password pair.
func Encode(username, password string) Token {
	return Token(base64.StdEncoding.EncodeToString([]byte(username + ":" + password)))
}

// Header returns the Authorization header value for the token.
func (t Token) Header() string {
	return scheme + " " + string(t)
}

// ParseHeader decodes a Basic Authorization header value.
func ParseHeader(value string) (username, password string, err error) {
	prefix, encoded, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(prefix, scheme) {
		return "", "", ErrMalformedCredentials
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", ErrMalformedCredentials
	}

	username, password, ok = strings.Cut(string(raw), ":")
	if !ok {
		return "", "", ErrMalformedCredentials
	}
	return username, password, nil
}
