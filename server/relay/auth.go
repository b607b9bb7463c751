package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// IssueToken returns an HS256 token for user, valid for ttl.
func IssueToken(secret []byte, user string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authenticate returns the user a token belongs to.
func authenticate(secret []byte, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	if len(secret) == 0 {
		return token, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := parsed.Claims.GetSubject()
	if err != nil || user == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return user, nil
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter used by WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
