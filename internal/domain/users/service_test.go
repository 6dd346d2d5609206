package users

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tinychat/server/internal/auth"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/storage"
	"github.com/tinychat/server/internal/storage/memory"
	"github.com/tinychat/server/internal/testauth"
)

type recordedEvent struct {
	kind string
	id   string
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) UserUpdated(_ context.Context, user storage.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: "user_update", id: user.ID})
}

func (r *recordingEvents) Disconnect(_ context.Context, subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: "disconnect", id: subjectID})
}

func (r *recordingEvents) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

type fixture struct {
	svc    *Service
	repo   *memory.Repository
	codec  *auth.TokenCodec
	events *recordingEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gen, err := ids.NewGenerator(1)
	require.NoError(t, err)

	repo := memory.NewRepository()
	codec := auth.NewTokenCodec()
	events := &recordingEvents{}
	svc := NewService(repo.Users(), auth.NewArgon2idHasherWithParams(testauth.FastArgon2Params), codec, gen, events, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, codec: codec, events: events}
}

func TestRegisterAssignsDiscriminators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, "1000", first.Discriminator)
	require.True(t, ids.Valid(first.ID))
	require.NotEqual(t, "pw", first.Hash)

	second, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "b@example.com"})
	require.NoError(t, err)
	require.Equal(t, "1001", second.Discriminator)

	other, err := f.svc.Register(ctx, RegisterParams{Username: "coffee", Password: "pw", Email: "c@example.com"})
	require.NoError(t, err)
	require.Equal(t, "1000", other.Discriminator)

	require.Empty(t, f.events.snapshot())
}

func TestRegisterSkipsTakenDiscriminator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "b@example.com"})
	require.NoError(t, err)

	// deleting 1000 leaves one "tea", so the count points at the taken 1001
	require.NoError(t, f.svc.Delete(ctx, *a))

	c, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "c@example.com"})
	require.NoError(t, err)
	require.Equal(t, "1002", c.Discriminator)
}

func TestRegisterRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterParams{Username: "other", Password: "pw", Email: "a@example.com"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterUsernameExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < discriminatorMax-discriminatorBase; i++ {
		_, err := f.repo.Users().Create(ctx, storage.User{
			ID:            fmt.Sprintf("%d", i+1),
			Username:      "popular",
			Discriminator: formatDiscriminator(discriminatorBase + i),
			Email:         fmt.Sprintf("p%d@example.com", i),
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Register(ctx, RegisterParams{Username: "popular", Password: "pw", Email: "late@example.com"})
	require.ErrorIs(t, err, ErrUsernameExhausted)
}

func TestRegisterValidatesUsername(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, name := range []string{"", "   ", "<b></b>", "abcdefghijklmnopqrstuvwxyz0123456"} {
		_, err := f.svc.Register(ctx, RegisterParams{Username: name, Password: "pw", Email: name + "@example.com"})
		require.ErrorIs(t, err, ErrInvalidUsername, "username %q", name)
	}

	user, err := f.svc.Register(ctx, RegisterParams{Username: "<i>tea</i>", Password: "pw", Email: "t@example.com"})
	require.NoError(t, err)
	require.Equal(t, "tea", user.Username)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "youshallnotpass", Email: "tea@example.com"})
	require.NoError(t, err)

	token, err := f.svc.Login(ctx, "tea@example.com", "youshallnotpass")
	require.NoError(t, err)

	claims, err := f.codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.NoError(t, f.codec.Verify(token, []byte(user.Hash)))

	_, err = f.svc.Login(ctx, "tea@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "youshallnotpass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdatePasswordRevokesTokensAndDisconnects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "old", Email: "tea@example.com"})
	require.NoError(t, err)
	token, err := f.svc.Login(ctx, "tea@example.com", "old")
	require.NoError(t, err)

	verifier := auth.NewVerifier(f.codec, f.repo.Users(), zerolog.Nop())
	_, err = verifier.AuthenticateToken(ctx, token)
	require.NoError(t, err)

	newPassword := "new"
	updated, err := f.svc.Update(ctx, *user, UpdateParams{Password: &newPassword})
	require.NoError(t, err)
	require.NotEqual(t, user.Hash, updated.Hash)

	_, err = verifier.AuthenticateToken(ctx, token)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	require.Equal(t, []recordedEvent{{kind: "disconnect", id: user.ID}}, f.events.snapshot())

	_, err = f.svc.Login(ctx, "tea@example.com", "new")
	require.NoError(t, err)
}

func TestUpdateProfilePublishesUserUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, RegisterParams{Username: "coffee", Password: "pw", Email: "c@example.com"})
	require.NoError(t, err)
	user, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "tea@example.com"})
	require.NoError(t, err)

	username := "coffee"
	email := "tea2@example.com"
	updated, err := f.svc.Update(ctx, *user, UpdateParams{Username: &username, Email: &email})
	require.NoError(t, err)
	require.Equal(t, "coffee", updated.Username)
	require.Equal(t, "1001", updated.Discriminator)
	require.Equal(t, "tea2@example.com", updated.Email)
	require.Equal(t, user.Hash, updated.Hash)

	require.Equal(t, []recordedEvent{{kind: "user_update", id: user.ID}}, f.events.snapshot())
}

func TestUpdateRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, RegisterParams{Username: "a", Password: "pw", Email: "a@example.com"})
	require.NoError(t, err)
	b, err := f.svc.Register(ctx, RegisterParams{Username: "b", Password: "pw", Email: "b@example.com"})
	require.NoError(t, err)

	taken := "a@example.com"
	_, err = f.svc.Update(ctx, *b, UpdateParams{Email: &taken})
	require.ErrorIs(t, err, ErrEmailTaken)

	same := "b@example.com"
	_, err = f.svc.Update(ctx, *b, UpdateParams{Email: &same})
	require.NoError(t, err)
}

func TestDeletePublishesDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.Register(ctx, RegisterParams{Username: "tea", Password: "pw", Email: "tea@example.com"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, *user))
	require.Equal(t, []recordedEvent{{kind: "disconnect", id: user.ID}}, f.events.snapshot())

	_, err = f.repo.Users().FindByID(ctx, user.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Error(t, f.svc.Delete(ctx, *user))
	require.Len(t, f.events.snapshot(), 1)
}

func TestFormatDiscriminator(t *testing.T) {
	require.Equal(t, "1000", formatDiscriminator(1000))
	require.Equal(t, "0042", formatDiscriminator(42))
	require.Equal(t, "9998", formatDiscriminator(9998))
}
