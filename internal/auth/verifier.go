package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/metrics"
	"github.com/tinychat/server/internal/storage"
)

// Rejection reasons. They are logged at debug level and counted, never
// returned to callers.
const (
	reasonMissingHeader   = "missing_header"
	reasonMalformedHeader = "malformed_header"
	reasonMalformedToken  = "malformed_token"
	reasonUnknownSubject  = "unknown_subject"
	reasonBadSignature    = "bad_signature"
)

// Verifier turns a bearer credential into the identity it was issued for.
// It resolves the per-subject secret from the credential store before
// checking the signature, so rotating a user's hash revokes their tokens.
type Verifier struct {
	codec  *TokenCodec
	store  storage.CredentialStore
	logger zerolog.Logger
}

func NewVerifier(codec *TokenCodec, store storage.CredentialStore, logger zerolog.Logger) *Verifier {
	return &Verifier{
		codec:  codec,
		store:  store,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Authenticate checks an Authorization header value. It returns
// ErrUnauthorized for every credential problem and ErrUnavailable when the
// store lookup fails for other reasons.
func (v *Verifier) Authenticate(ctx context.Context, header string) (*storage.User, error) {
	if strings.TrimSpace(header) == "" {
		return nil, v.reject(ctx, reasonMissingHeader, nil)
	}
	token, err := TokenFromHeader(header)
	if err != nil {
		return nil, v.reject(ctx, reasonMalformedHeader, err)
	}
	return v.AuthenticateToken(ctx, token)
}

// AuthenticateToken checks a raw token with no scheme prefix.
func (v *Verifier) AuthenticateToken(ctx context.Context, token string) (*storage.User, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return nil, v.reject(ctx, reasonMalformedToken, err)
	}
	if !ids.Valid(claims.UserID) {
		return nil, v.reject(ctx, reasonMalformedToken, ids.ErrInvalidID)
	}

	user, err := v.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, v.reject(ctx, reasonUnknownSubject, nil)
		}
		v.log(ctx).Error().Err(err).Msg("credential lookup failed")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := v.codec.Verify(token, []byte(user.Hash)); err != nil {
		return nil, v.reject(ctx, reasonBadSignature, err)
	}
	return user, nil
}

func (v *Verifier) reject(ctx context.Context, reason string, cause error) error {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	event := v.log(ctx).Debug().Str("reason", reason)
	if cause != nil {
		event = event.Err(cause)
	}
	event.Msg("bearer credential rejected")
	return ErrUnauthorized
}

func (v *Verifier) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &v.logger
}
