package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the bearer token payload. The wire form is
// {"id": subject, "iat": seconds, "jti": nonce}; no expiry is set.
type TokenClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenCodec issues and checks HS256 bearer tokens. The signing secret is
// supplied per call so every subject can be keyed by its own secret.
type TokenCodec struct {
	now    func() time.Time
	parser *jwt.Parser
}

type CodecOption func(*TokenCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

func NewTokenCodec(opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	return c
}

// Issue signs a token for subjectID with secret.
func (c *TokenCodec) Issue(subjectID string, secret []byte) (string, error) {
	if subjectID == "" || len(secret) == 0 {
		return "", ErrInvalidTokenArgs
	}

	claims := TokenClaims{
		UserID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now()),
			ID:       uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode parses the token structure without checking the signature.
func (c *TokenCodec) Decode(token string) (TokenClaims, error) {
	if strings.TrimSpace(token) == "" {
		return TokenClaims{}, ErrMalformedToken
	}

	var claims TokenClaims
	if _, _, err := c.parser.ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, ErrMalformedToken
	}
	if claims.UserID == "" {
		return TokenClaims{}, ErrMalformedToken
	}
	return claims, nil
}

// Verify checks the token signature against secret.
func (c *TokenCodec) Verify(token string, secret []byte) error {
	if len(secret) == 0 {
		return ErrSignatureInvalid
	}

	parsed, err := c.parser.ParseWithClaims(token, &TokenClaims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	if !parsed.Valid {
		return ErrSignatureInvalid
	}
	return nil
}

// TokenFromHeader extracts the credential from an Authorization header value
// of the form "Bearer <token>".
func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}
