package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tinychat/server/internal/storage"
)

type fakeCredentials struct {
	mu    sync.Mutex
	users map[string]storage.User
	err   error
	calls int
}

func newFakeCredentials(users ...storage.User) *fakeCredentials {
	f := &fakeCredentials{users: map[string]storage.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeCredentials) FindByID(_ context.Context, id string) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (f *fakeCredentials) FindByEmail(_ context.Context, email string) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeCredentials) setHash(id, hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.Hash = hash
	f.users[id] = u
}

func newTestVerifier(store storage.CredentialStore) (*Verifier, *TokenCodec) {
	codec := NewTokenCodec()
	return NewVerifier(codec, store, zerolog.Nop()), codec
}

func TestVerifierRevokesOnSecretRotation(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "915655285018624", Username: "alice", Hash: "abc"})
	verifier, codec := newTestVerifier(store)

	token, err := codec.Issue("915655285018624", []byte("abc"))
	require.NoError(t, err)

	user, err := verifier.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, "915655285018624", user.ID)
	require.Equal(t, "alice", user.Username)

	store.setHash("915655285018624", "xyz")

	user, err = verifier.Authenticate(ctx, "Bearer "+token)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Nil(t, user)
}

func TestVerifierIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "915655285018624", Hash: "abc"})
	verifier, codec := newTestVerifier(store)

	token, err := codec.Issue("915655285018624", []byte("abc"))
	require.NoError(t, err)

	first, err := verifier.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	second, err := verifier.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "abc", store.users["915655285018624"].Hash)
}

func TestVerifierMalformedHeaders(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "915655285018624", Hash: "abc"})
	verifier, _ := newTestVerifier(store)

	for _, header := range []string{
		"",
		"   ",
		"Bearer",
		"Bearer ",
		"tokenonly",
		"Bearer not-a-token",
		"Bearer a.b.c",
		"Basic dXNlcjpwYXNz",
	} {
		require.NotPanics(t, func() {
			user, err := verifier.Authenticate(ctx, header)
			require.ErrorIs(t, err, ErrUnauthorized, "header %q", header)
			require.Nil(t, user)
		})
	}
	require.Zero(t, store.calls, "malformed credentials must not reach the store")
}

func TestVerifierRejectsNonSnowflakeSubject(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "user-1", Hash: "abc"})
	verifier, codec := newTestVerifier(store)

	token, err := codec.Issue("user-1", []byte("abc"))
	require.NoError(t, err)

	_, err = verifier.Authenticate(ctx, "Bearer "+token)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Zero(t, store.calls)
}

func TestVerifierUnknownSubjectLooksLikeBadSignature(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "915655285018624", Hash: "abc"})
	verifier, codec := newTestVerifier(store)

	unknown, err := codec.Issue("915655285018625", []byte("abc"))
	require.NoError(t, err)
	forged, err := codec.Issue("915655285018624", []byte("not-the-hash"))
	require.NoError(t, err)

	_, unknownErr := verifier.Authenticate(ctx, "Bearer "+unknown)
	_, forgedErr := verifier.Authenticate(ctx, "Bearer "+forged)

	require.ErrorIs(t, unknownErr, ErrUnauthorized)
	require.ErrorIs(t, forgedErr, ErrUnauthorized)
	require.Equal(t, unknownErr.Error(), forgedErr.Error())
}

func TestVerifierStoreFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "915655285018624", Hash: "abc"})
	store.err = errors.New("connection refused")
	verifier, codec := newTestVerifier(store)

	token, err := codec.Issue("915655285018624", []byte("abc"))
	require.NoError(t, err)

	_, err = verifier.Authenticate(ctx, "Bearer "+token)
	require.ErrorIs(t, err, ErrUnavailable)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestVerifierAuthenticateTokenSkipsHeaderParsing(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentials(storage.User{ID: "915655285018624", Hash: "abc"})
	verifier, codec := newTestVerifier(store)

	token, err := codec.Issue("915655285018624", []byte("abc"))
	require.NoError(t, err)

	user, err := verifier.AuthenticateToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "915655285018624", user.ID)

	_, err = verifier.AuthenticateToken(ctx, "Bearer "+token)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = verifier.AuthenticateToken(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrUnauthorized)
}
