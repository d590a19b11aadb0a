// Package auth verifies bearer tokens issued by the external identity provider
// and carries the verified identity through request contexts.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BuzzLyutic/todo-api/internal/config"
)

var (
	// ErrInvalidFormat is returned when the token is not three dot-separated segments.
	ErrInvalidFormat = errors.New("invalid token format")
	// ErrExpired is returned when the exp claim is in the past.
	ErrExpired = errors.New("token has expired")
	// ErrInvalidSignature is returned when the signature or signing method does not check out.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMalformed is returned for any other decode or claim failure.
	ErrMalformed = errors.New("malformed token")
	// ErrMissingSubject is returned when the sub claim is absent or not a string.
	ErrMissingSubject = errors.New("token has no subject")
)

// Verifier validates bearer tokens against an immutable JWT configuration.
//
// In permissive mode the signature is not verified at all and the payload's
// subject is trusted as-is. That mode is reduced-trust and must only be
// enabled at deploy time for non-production testing.
type Verifier struct {
	secret     []byte
	algorithm  string
	permissive bool
	now        func() time.Time
	parser     *jwt.Parser
}

func NewVerifier(cfg config.JWT) *Verifier {
	v := &Verifier{
		secret:     []byte(cfg.Secret),
		algorithm:  cfg.Algorithm,
		permissive: cfg.Permissive,
		now:        time.Now,
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{cfg.Algorithm}),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v
}

func (v *Verifier) Permissive() bool {
	return v.permissive
}

// Verify returns the token's subject or one of the package's sentinel errors.
func (v *Verifier) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalidFormat
	}

	// Only the payload segment is read here, so an expired token reports
	// ErrExpired whatever the state of its header or signature.
	claims, err := v.payload(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if exp != nil && !v.now().Before(exp.Time) {
		return "", ErrExpired
	}

	if v.permissive {
		return subject(claims)
	}

	verified := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, verified, v.keyFunc); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return subject(verified)
}

func (v *Verifier) payload(segment string) (jwt.MapClaims, error) {
	raw, err := v.parser.DecodeSegment(segment)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("payload is not a json object: %w", err)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return v.secret, nil
}

func subject(claims jwt.MapClaims) (string, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrMissingSubject
	}
	return sub, nil
}
