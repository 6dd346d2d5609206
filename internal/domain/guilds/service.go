// Package guilds owns guilds, their channels, invites, and membership.
package guilds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinychat/server/internal/domain/ids"
	"github.com/tinychat/server/internal/sanitize"
	"github.com/tinychat/server/internal/storage"
)

var (
	ErrGuildNotFound   = errors.New("guild not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrInviteNotFound  = errors.New("invite not found")
	ErrNotOwner        = errors.New("only the guild owner can do that")
	ErrNotMember       = errors.New("not a member of this guild")
	ErrAlreadyMember   = errors.New("already a member of this guild")
	ErrInvalidName     = errors.New("name must be 1 to 32 characters")
	ErrInvalidMaxAge   = errors.New("max age must not be negative")
)

const maxNameLength = 32

// Events receives every committed guild mutation. Implementations must not
// fail the caller; the mutation has already been stored.
type Events interface {
	GuildCreated(ctx context.Context, actorID string, guild storage.Guild)
	GuildUpdated(ctx context.Context, actorID string, guild storage.Guild)
	GuildDeleted(ctx context.Context, actorID string, guild storage.Guild)
	ChannelCreated(ctx context.Context, actorID string, channel storage.Channel)
	InviteCreated(ctx context.Context, actorID string, invite storage.Invite)
	MemberJoined(ctx context.Context, guildID string, user storage.User)
}

// GuildView is a guild together with its owner's public profile.
type GuildView struct {
	storage.Guild
	Owner *storage.User
}

type Service struct {
	repo   storage.Repository
	ids    *ids.Generator
	events Events
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(repo storage.Repository, idGen *ids.Generator, events Events, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		ids:    idGen,
		events: events,
		now:    time.Now,
		logger: logger.With().Str("component", "guilds").Logger(),
	}
}

// CreateGuild stores a guild owned by actor, who becomes its first member.
func (s *Service) CreateGuild(ctx context.Context, actor storage.User, name string) (*storage.Guild, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	guild, err := s.repo.Guilds().CreateGuild(ctx, storage.Guild{
		ID:      s.ids.New(),
		Name:    clean,
		OwnerID: actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create guild: %w", err)
	}

	s.logger.Info().Str("guild_id", guild.ID).Str("owner_id", actor.ID).Msg("created guild")
	s.events.GuildCreated(ctx, actor.ID, *guild)
	return guild, nil
}

func (s *Service) GetGuild(ctx context.Context, id string) (*GuildView, error) {
	guild, err := s.findGuild(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &GuildView{Guild: *guild}
	owner, err := s.repo.Users().FindByID(ctx, guild.OwnerID)
	switch {
	case err == nil:
		view.Owner = owner
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("find owner: %w", err)
	}
	return view, nil
}

func (s *Service) UpdateGuild(ctx context.Context, actor storage.User, id, name string) (*storage.Guild, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	guild, err := s.ownedGuild(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	guild.Name = clean

	updated, err := s.repo.Guilds().UpdateGuild(ctx, *guild)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrGuildNotFound
		}
		return nil, fmt.Errorf("update guild: %w", err)
	}

	s.events.GuildUpdated(ctx, actor.ID, *updated)
	return updated, nil
}

func (s *Service) DeleteGuild(ctx context.Context, actor storage.User, id string) error {
	guild, err := s.ownedGuild(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.repo.Guilds().DeleteGuild(ctx, guild.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrGuildNotFound
		}
		return fmt.Errorf("delete guild: %w", err)
	}

	s.logger.Info().Str("guild_id", guild.ID).Msg("deleted guild")
	s.events.GuildDeleted(ctx, actor.ID, *guild)
	return nil
}

// CreateChannel adds a channel to a guild the actor owns. Guilds owned by
// someone else are reported as not found.
func (s *Service) CreateChannel(ctx context.Context, actor storage.User, guildID, name string) (*storage.Channel, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	guild, err := s.findGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if guild.OwnerID != actor.ID {
		return nil, ErrGuildNotFound
	}

	channel, err := s.repo.Guilds().CreateChannel(ctx, storage.Channel{
		ID:      s.ids.New(),
		Name:    clean,
		GuildID: guild.ID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrGuildNotFound
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}

	s.events.ChannelCreated(ctx, actor.ID, *channel)
	return channel, nil
}

// CreateInvite issues an invite into channelID for members of the guild.
// A zero maxAge never expires.
func (s *Service) CreateInvite(ctx context.Context, actor storage.User, guildID, channelID string, maxAge time.Duration) (*storage.Invite, error) {
	if maxAge < 0 {
		return nil, ErrInvalidMaxAge
	}

	guild, err := s.findGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	member, err := s.repo.Guilds().IsMember(ctx, guild.ID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, ErrNotMember
	}

	if !ids.Valid(channelID) {
		return nil, ErrChannelNotFound
	}
	channel, err := s.repo.Guilds().GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("find channel: %w", err)
	}
	if channel.GuildID != guild.ID {
		return nil, ErrChannelNotFound
	}

	invite := storage.Invite{
		ID:        s.ids.New(),
		GuildID:   guild.ID,
		ChannelID: channel.ID,
		CreatorID: actor.ID,
	}
	if maxAge > 0 {
		expires := s.now().Add(maxAge).UTC()
		invite.ExpiresAt = &expires
	}

	created, err := s.repo.Guilds().CreateInvite(ctx, invite)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}

	s.events.InviteCreated(ctx, actor.ID, *created)
	return created, nil
}

// JoinInvite adds actor to the invite's guild. Unknown and expired invites
// are both not found.
func (s *Service) JoinInvite(ctx context.Context, actor storage.User, inviteID string) (*storage.Guild, error) {
	if !ids.Valid(inviteID) {
		return nil, ErrInviteNotFound
	}

	invite, err := s.repo.Guilds().GetInvite(ctx, inviteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("find invite: %w", err)
	}
	if invite.Expired(s.now()) {
		return nil, ErrInviteNotFound
	}

	guild, err := s.findGuild(ctx, invite.GuildID)
	if err != nil {
		return nil, err
	}

	added, err := s.repo.Guilds().AddMember(ctx, guild.ID, actor.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrGuildNotFound
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	if !added {
		return nil, ErrAlreadyMember
	}

	s.logger.Info().Str("guild_id", guild.ID).Str("user_id", actor.ID).Msg("member joined")
	s.events.MemberJoined(ctx, guild.ID, actor)
	return guild, nil
}

// ExpireInvites deletes invites that expired before now.
func (s *Service) ExpireInvites(ctx context.Context) (int64, error) {
	n, err := s.repo.Guilds().DeleteExpiredInvites(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired invites: %w", err)
	}
	return n, nil
}

func (s *Service) findGuild(ctx context.Context, id string) (*storage.Guild, error) {
	if !ids.Valid(id) {
		return nil, ErrGuildNotFound
	}
	guild, err := s.repo.Guilds().GetGuild(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrGuildNotFound
		}
		return nil, fmt.Errorf("find guild: %w", err)
	}
	return guild, nil
}

func (s *Service) ownedGuild(ctx context.Context, actor storage.User, id string) (*storage.Guild, error) {
	guild, err := s.findGuild(ctx, id)
	if err != nil {
		return nil, err
	}
	if guild.OwnerID != actor.ID {
		return nil, ErrNotOwner
	}
	return guild, nil
}

func cleanName(raw string) (string, error) {
	name := sanitize.Name(raw)
	if name == "" || len([]rune(name)) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
