package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/metrics"
	"github.com/tinychat/server/internal/pubsub"
	"github.com/tinychat/server/internal/storage"
)

const DefaultPublishTimeout = 2 * time.Second

// Publisher pushes envelopes to the gateway. Publishing is best effort: a
// failure is logged and counted but never returned, so it cannot undo a
// mutation that already committed.
type Publisher struct {
	bus     pubsub.Bus
	timeout time.Duration
	logger  zerolog.Logger
}

func NewPublisher(bus pubsub.Bus, timeout time.Duration, logger zerolog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		bus:     bus,
		timeout: timeout,
		logger:  logger.With().Str("component", "publisher").Logger(),
	}
}

// Publish sends env on channel, waiting at most the publish timeout. The
// caller's cancellation does not abort the send.
func (p *Publisher) Publish(ctx context.Context, channel string, env Envelope) {
	label := envelopeLabel(env)

	payload, err := json.Marshal(env)
	if err != nil {
		metrics.GatewayPublish.WithLabelValues(label, "error").Inc()
		p.logger.Error().Err(err).Str("type", label).Msg("encode envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	err = p.bus.Publish(ctx, channel, payload)
	metrics.GatewayPublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayPublish.WithLabelValues(label, "error").Inc()
		p.logger.Error().Err(err).Str("channel", channel).Str("type", label).Msg("publish failed")
		return
	}
	metrics.GatewayPublish.WithLabelValues(label, "success").Inc()
}

func (p *Publisher) dispatch(ctx context.Context, d Dispatch) {
	p.Publish(ctx, pubsub.ChannelGateway, Envelope{Type: TypeDispatch, Data: d})
}

func (p *Publisher) GuildCreated(ctx context.Context, actorID string, guild storage.Guild) {
	p.dispatch(ctx, Dispatch{Type: EventGuildCreate, ID: actorID, Guild: NewGuildSnapshot(guild)})
}

func (p *Publisher) GuildUpdated(ctx context.Context, actorID string, guild storage.Guild) {
	p.dispatch(ctx, Dispatch{Type: EventGuildUpdate, ID: actorID, Guild: NewGuildSnapshot(guild)})
}

// GuildDeleted carries the guild as it was before deletion.
func (p *Publisher) GuildDeleted(ctx context.Context, actorID string, guild storage.Guild) {
	p.dispatch(ctx, Dispatch{Type: EventGuildDelete, ID: actorID, Guild: NewGuildSnapshot(guild)})
}

func (p *Publisher) ChannelCreated(ctx context.Context, actorID string, channel storage.Channel) {
	p.dispatch(ctx, Dispatch{Type: EventChannelCreate, ID: actorID, Channel: NewChannelSnapshot(channel)})
}

func (p *Publisher) MemberJoined(ctx context.Context, guildID string, user storage.User) {
	p.dispatch(ctx, Dispatch{
		Type:   EventGuildMemberAdd,
		ID:     user.ID,
		Member: &MemberSnapshot{GuildID: guildID, User: *NewUserSnapshot(user)},
	})
}

func (p *Publisher) InviteCreated(ctx context.Context, actorID string, invite storage.Invite) {
	p.dispatch(ctx, Dispatch{Type: EventInviteCreate, ID: actorID, Invite: NewInviteSnapshot(invite)})
}

func (p *Publisher) UserUpdated(ctx context.Context, user storage.User) {
	p.dispatch(ctx, Dispatch{Type: EventUserUpdate, ID: user.ID, User: NewUserSnapshot(user)})
}

// Disconnect tells the gateway to drop every socket held by subjectID.
func (p *Publisher) Disconnect(ctx context.Context, subjectID string) {
	p.Publish(ctx, pubsub.ChannelGateway, Envelope{
		Type: TypeInternal,
		Data: Internal{Type: EventDisconnect, ID: subjectID},
	})
}

func (p *Publisher) ConfirmAuth(ctx context.Context, subjectID *string, valid bool, token string) {
	p.Publish(ctx, pubsub.ChannelGateway, Envelope{
		Type: TypeConfirmAuth,
		Data: ConfirmAuth{ID: subjectID, Valid: valid, Token: token},
	})
}

func envelopeLabel(env Envelope) string {
	switch d := env.Data.(type) {
	case Dispatch:
		return d.Type
	case Internal:
		return d.Type
	}
	return env.Type
}
