// Package testauth creates users and bearer credentials for tests and
// local tooling. It must never be wired into the server itself.
package testauth

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/storage"
)

// FastArgon2Params keeps hashing cheap in test suites.
var FastArgon2Params = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

// TestAuthenticator seeds users into a repository and signs tokens for them
// the same way the login flow does.
type TestAuthenticator struct {
	repo   storage.Repository
	codec  *auth.TokenCodec
	hasher auth.PasswordHasher
	ids    *ids.Generator
	seq    atomic.Int64
}

func NewTestAuthenticator(repo storage.Repository, codec *auth.TokenCodec) (*TestAuthenticator, error) {
	gen, err := ids.NewGenerator(ids.MaxNodeID)
	if err != nil {
		return nil, err
	}
	return &TestAuthenticator{
		repo:   repo,
		codec:  codec,
		hasher: auth.NewArgon2idHasherWithParams(FastArgon2Params),
		ids:    gen,
	}, nil
}

// Hasher returns the hasher used for seeded users.
func (ta *TestAuthenticator) Hasher() auth.PasswordHasher {
	return ta.hasher
}

// CreateUser stores a user whose password is password.
func (ta *TestAuthenticator) CreateUser(ctx context.Context, username, password string) (*storage.User, error) {
	hash, err := ta.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	n := ta.seq.Add(1)
	return ta.repo.Users().Create(ctx, storage.User{
		ID:            ta.ids.New(),
		Username:      username,
		Discriminator: fmt.Sprintf("%04d", 1000+n),
		Email:         fmt.Sprintf("%s-%d@example.test", username, n),
		Hash:          hash,
	})
}

// Token signs a token with the user's current hash.
func (ta *TestAuthenticator) Token(user storage.User) (string, error) {
	return ta.codec.Issue(user.ID, []byte(user.Hash))
}

// AuthHeader returns the Authorization header value for user.
func (ta *TestAuthenticator) AuthHeader(user storage.User) (string, error) {
	token, err := ta.Token(user)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// AddAuth adds the user's bearer credential to req.
func (ta *TestAuthenticator) AddAuth(req *http.Request, user storage.User) error {
	header, err := ta.AuthHeader(user)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", header)
	return nil
}
