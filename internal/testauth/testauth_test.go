package testauth

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/storage/memory"
)

func TestTestAuthenticatorIssuesVerifiableCredentials(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	codec := auth.NewTokenCodec()

	ta, err := NewTestAuthenticator(repo, codec)
	require.NoError(t, err)

	user, err := ta.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)

	ok, err := ta.Hasher().Verify("hunter2", user.Hash)
	require.NoError(t, err)
	require.True(t, ok)

	req := httptest.NewRequest("GET", "/v1/users/@me", nil)
	require.NoError(t, ta.AddAuth(req, *user))
	require.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "Bearer "))

	verifier := auth.NewVerifier(codec, repo.Users(), zerolog.Nop())
	got, err := verifier.Authenticate(ctx, req.Header.Get("Authorization"))
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestCreateUserAssignsDistinctEmails(t *testing.T) {
	ctx := context.Background()
	ta, err := NewTestAuthenticator(memory.NewRepository(), auth.NewTokenCodec())
	require.NoError(t, err)

	a, err := ta.CreateUser(ctx, "bob", "pw")
	require.NoError(t, err)
	b, err := ta.CreateUser(ctx, "bob", "pw")
	require.NoError(t, err)
	require.NotEqual(t, a.Email, b.Email)
	require.NotEqual(t, a.Discriminator, b.Discriminator)
}
