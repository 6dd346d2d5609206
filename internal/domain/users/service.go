package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/sanitize"
	"github.com/tinychat/server/internal/storage"
)

// Error types for user domain operations
var (
	ErrEmailTaken         = errors.New("email is already taken")
	ErrUsernameExhausted  = errors.New("username is used too many times")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("username must be 1 to 32 characters")
)

const (
	discriminatorBase = 1000
	discriminatorMax  = 9999

	// maxTagAttempts bounds how many discriminators are tried when
	// concurrent registrations collide on the same one.
	maxTagAttempts = 16

	maxUsernameLength = 32
)

// Events receives the user changes the realtime gateway must hear about.
type Events interface {
	UserUpdated(ctx context.Context, user storage.User)
	Disconnect(ctx context.Context, subjectID string)
}

// Service handles registration, login, and profile changes.
type Service struct {
	repo   storage.UserRepository
	hasher auth.PasswordHasher
	codec  *auth.TokenCodec
	ids    *ids.Generator
	events Events
	logger zerolog.Logger
}

func NewService(
	repo storage.UserRepository,
	hasher auth.PasswordHasher,
	codec *auth.TokenCodec,
	idGen *ids.Generator,
	events Events,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		codec:  codec,
		ids:    idGen,
		events: events,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

type RegisterParams struct {
	Username string
	Password string
	Email    string
}

// UpdateParams holds optional profile changes; nil fields are left alone.
type UpdateParams struct {
	Username *string
	Password *string
	Email    *string
}

// Register creates an account. The discriminator is the number of existing
// accounts sharing the username plus 1000, zero padded to four digits.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*storage.User, error) {
	username, err := cleanUsername(params.Username)
	if err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, params.Email, ""); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := storage.User{
		ID:       s.ids.New(),
		Username: username,
		Email:    params.Email,
		Hash:     hash,
	}
	created, err := s.withDiscriminator(ctx, user, s.repo.Create)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", created.ID).Str("username", created.Username).Msg("created user")
	return created, nil
}

// Login checks the credentials and issues a token signed with the user's
// current hash. Unknown email and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug().Msg("login rejected: unknown email")
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.Hash)
	if err != nil {
		return "", fmt.Errorf("verify password for %s: %w", user.ID, err)
	}
	if !ok {
		s.logger.Debug().Str("user_id", user.ID).Msg("login rejected: bad password")
		return "", ErrInvalidCredentials
	}

	token, err := s.codec.Issue(user.ID, []byte(user.Hash))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// IssueToken signs a token for an existing user without a password check.
// It backs the operator CLI.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	return s.codec.Issue(user.ID, []byte(user.Hash))
}

// Update applies params to current. A password change rotates the signing
// secret, so the gateway is told to drop the user's sockets; any other
// change is broadcast as user_update.
func (s *Service) Update(ctx context.Context, current storage.User, params UpdateParams) (*storage.User, error) {
	next := current

	if params.Email != nil && *params.Email != current.Email {
		if err := s.ensureEmailFree(ctx, *params.Email, current.ID); err != nil {
			return nil, err
		}
		next.Email = *params.Email
	}

	passwordChanged := false
	if params.Password != nil {
		hash, err := s.hasher.Hash(*params.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		next.Hash = hash
		passwordChanged = true
	}

	var (
		updated *storage.User
		err     error
	)
	if params.Username != nil {
		username, cerr := cleanUsername(*params.Username)
		if cerr != nil {
			return nil, cerr
		}
		if username != current.Username {
			next.Username = username
			updated, err = s.withDiscriminator(ctx, next, s.repo.Update)
		}
	}
	if updated == nil && err == nil {
		updated, err = s.repo.Update(ctx, next)
		if errors.Is(err, storage.ErrEmailExists) {
			err = ErrEmailTaken
		}
	}
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	if passwordChanged {
		s.events.Disconnect(ctx, updated.ID)
	} else {
		s.events.UserUpdated(ctx, *updated)
	}
	return updated, nil
}

// Delete removes the account. Its tokens stop resolving, and the gateway is
// told to drop its sockets.
func (s *Service) Delete(ctx context.Context, user storage.User) error {
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("deleted user")
	s.events.Disconnect(ctx, user.ID)
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check email: %w", err)
	case existing.ID != selfID:
		s.logger.Debug().Msg("rejecting email already in use")
		return ErrEmailTaken
	}
	return nil
}

// withDiscriminator assigns the next discriminator for user.Username and
// writes the user, moving to the following number when another writer took
// it first.
func (s *Service) withDiscriminator(ctx context.Context, user storage.User, write func(context.Context, storage.User) (*storage.User, error)) (*storage.User, error) {
	count, err := s.repo.CountByUsername(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("count username: %w", err)
	}

	for attempt := 0; attempt < maxTagAttempts; attempt++ {
		n := count + discriminatorBase + attempt
		if n >= discriminatorMax {
			return nil, ErrUsernameExhausted
		}
		user.Discriminator = formatDiscriminator(n)

		saved, err := write(ctx, user)
		switch {
		case err == nil:
			return saved, nil
		case errors.Is(err, storage.ErrTagExists):
			continue
		case errors.Is(err, storage.ErrEmailExists):
			return nil, ErrEmailTaken
		default:
			return nil, fmt.Errorf("save user: %w", err)
		}
	}
	return nil, ErrUsernameExhausted
}

func formatDiscriminator(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

func cleanUsername(raw string) (string, error) {
	username := sanitize.Name(raw)
	if username == "" || len([]rune(username)) > maxUsernameLength {
		return "", ErrInvalidUsername
	}
	return username, nil
}
