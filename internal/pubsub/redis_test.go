package pubsub

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRedisBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	bus, err := DialRedis(context.Background(), "redis://"+server.Addr(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, server
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	bus, _ := newTestRedisBus(t)

	sub, err := bus.Subscribe(ctx, ChannelREST)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, ChannelREST, []byte(`{"type":"confirm_auth","data":{"token":"t"}}`)))

	require.JSONEq(t, `{"type":"confirm_auth","data":{"token":"t"}}`, string(receive(t, sub)))
	require.NoError(t, bus.Ping(ctx))
}

func TestRedisBusCloseSubscriptionClosesMessages(t *testing.T) {
	ctx := context.Background()
	bus, _ := newTestRedisBus(t)

	sub, err := bus.Subscribe(ctx, ChannelGateway)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, ok := <-sub.Messages()
	require.False(t, ok)
}

func TestDialRedisUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := DialRedis(context.Background(), "redis://"+addr, zerolog.Nop())
	require.Error(t, err)

	_, err = DialRedis(context.Background(), "not a url", zerolog.Nop())
	require.Error(t, err)
}
