package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tinychat/server/internal/pubsub"
	"github.com/tinychat/server/internal/storage"
)

func TestPublisherGuildCreatedPublishesOnce(t *testing.T) {
	ctx := context.Background()
	bus := pubsub.NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	sub, err := bus.Subscribe(ctx, pubsub.ChannelGateway)
	require.NoError(t, err)

	publisher := NewPublisher(bus, time.Second, zerolog.Nop())
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	publisher.GuildCreated(ctx, "915655285018624", storage.Guild{ID: "7", Name: "Lounge", OwnerID: "915655285018624", CreatedAt: created})

	require.JSONEq(t, `{"type":"dispatch","data":{"type":"guild_create","id":"915655285018624",
		"guild":{"id":"7","name":"Lounge","owner_id":"915655285018624","created_at":"2026-01-02T03:04:05Z"}}}`,
		expectMessage(t, sub))
	expectNoMessage(t, sub, 50*time.Millisecond)
}

func TestPublisherEnvelopes(t *testing.T) {
	ctx := context.Background()
	bus := pubsub.NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	sub, err := bus.Subscribe(ctx, pubsub.ChannelGateway)
	require.NoError(t, err)

	publisher := NewPublisher(bus, time.Second, zerolog.Nop())
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	user := storage.User{ID: "9", Username: "alice", Discriminator: "1000", Email: "a@example.com", Hash: "secret", CreatedAt: created}

	publisher.ChannelCreated(ctx, "9", storage.Channel{ID: "3", Name: "general", GuildID: "7", CreatedAt: created})
	require.JSONEq(t, `{"type":"dispatch","data":{"type":"channel_create","id":"9",
		"channel":{"id":"3","name":"general","guild_id":"7","created_at":"2026-01-02T03:04:05Z"}}}`, expectMessage(t, sub))

	publisher.Disconnect(ctx, "9")
	require.JSONEq(t, `{"type":"internal","data":{"type":"disconnect","id":"9"}}`, expectMessage(t, sub))

	publisher.UserUpdated(ctx, user)
	msg := expectMessage(t, sub)
	require.JSONEq(t, `{"type":"dispatch","data":{"type":"user_update","id":"9",
		"user":{"id":"9","username":"alice","discriminator":"1000","created_at":"2026-01-02T03:04:05Z"}}}`, msg)
	require.NotContains(t, msg, "secret")
	require.NotContains(t, msg, "a@example.com")

	publisher.MemberJoined(ctx, "7", user)
	require.JSONEq(t, `{"type":"dispatch","data":{"type":"guild_member_add","id":"9",
		"member":{"guild_id":"7","user":{"id":"9","username":"alice","discriminator":"1000","created_at":"2026-01-02T03:04:05Z"}}}}`,
		expectMessage(t, sub))

	id := "9"
	publisher.ConfirmAuth(ctx, &id, true, "tok")
	require.JSONEq(t, `{"type":"confirm_auth","data":{"id":"9","valid":true,"token":"tok"}}`, expectMessage(t, sub))
}

func TestPublisherBoundedBySlowBus(t *testing.T) {
	publisher := NewPublisher(slowBus{}, 50*time.Millisecond, zerolog.Nop())

	start := time.Now()
	publisher.GuildCreated(context.Background(), "1", storage.Guild{ID: "2", Name: "Lounge", OwnerID: "1"})
	require.Less(t, time.Since(start), time.Second)
}

func TestPublisherIgnoresCallerCancellation(t *testing.T) {
	bus := pubsub.NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background(), pubsub.ChannelGateway)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewPublisher(bus, time.Second, zerolog.Nop()).Disconnect(ctx, "1")
	require.JSONEq(t, `{"type":"internal","data":{"type":"disconnect","id":"1"}}`, expectMessage(t, sub))
}

func TestPublisherSwallowsFailures(t *testing.T) {
	bus := pubsub.NewMemoryBus(zerolog.Nop())
	require.NoError(t, bus.Close())

	require.NotPanics(t, func() {
		NewPublisher(bus, 0, zerolog.Nop()).Disconnect(context.Background(), "1")
	})
}
