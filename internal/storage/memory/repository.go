// Package memory is an in-process storage.Repository for tests and local
// tooling. It enforces the same uniqueness and reference rules as the
// postgres schema.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tinychat/server/internal/storage"
)

var _ storage.Repository = (*Repository)(nil)

type memberKey struct {
	guildID string
	userID  string
}

type Repository struct {
	mu  sync.RWMutex
	now func() time.Time

	users    map[string]storage.User
	guilds   map[string]storage.Guild
	channels map[string]storage.Channel
	invites  map[string]storage.Invite
	members  map[memberKey]storage.Member

	// PingErr, when set, is returned by Ping.
	PingErr error
}

func NewRepository() *Repository {
	return &Repository{
		now:      time.Now,
		users:    make(map[string]storage.User),
		guilds:   make(map[string]storage.Guild),
		channels: make(map[string]storage.Channel),
		invites:  make(map[string]storage.Invite),
		members:  make(map[memberKey]storage.Member),
	}
}

func (r *Repository) Users() storage.UserRepository   { return (*userRepo)(r) }
func (r *Repository) Guilds() storage.GuildRepository { return (*guildRepo)(r) }

func (r *Repository) Ping(context.Context) error { return r.PingErr }

// WithTx runs fn against the same repository. Writes are not rolled back
// when fn fails.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	return fn(ctx, r)
}

type userRepo Repository

func (u *userRepo) FindByID(_ context.Context, id string) (*storage.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &user, nil
}

func (u *userRepo) FindByEmail(_ context.Context, email string) (*storage.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, user := range u.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (u *userRepo) CountByUsername(_ context.Context, username string) (int, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	count := 0
	for _, user := range u.users {
		if user.Username == username {
			count++
		}
	}
	return count, nil
}

// conflict reports which unique constraint user would violate. Caller holds mu.
func (u *userRepo) conflict(user storage.User) error {
	for _, other := range u.users {
		if other.ID == user.ID {
			continue
		}
		if other.Email == user.Email {
			return storage.ErrEmailExists
		}
		if other.Username == user.Username && other.Discriminator == user.Discriminator {
			return storage.ErrTagExists
		}
	}
	return nil
}

func (u *userRepo) Create(_ context.Context, user storage.User) (*storage.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.conflict(user); err != nil {
		return nil, err
	}
	user.CreatedAt = u.now().UTC()
	u.users[user.ID] = user
	return &user, nil
}

func (u *userRepo) Update(_ context.Context, user storage.User) (*storage.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	existing, ok := u.users[user.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := u.conflict(user); err != nil {
		return nil, err
	}
	user.CreatedAt = existing.CreatedAt
	u.users[user.ID] = user
	return &user, nil
}

func (u *userRepo) Delete(_ context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.users, id)
	for gid, g := range u.guilds {
		if g.OwnerID == id {
			(*guildRepo)(u).deleteGuildLocked(gid)
		}
	}
	for key := range u.members {
		if key.userID == id {
			delete(u.members, key)
		}
	}
	for iid, inv := range u.invites {
		if inv.CreatorID == id {
			delete(u.invites, iid)
		}
	}
	return nil
}

type guildRepo Repository

func (g *guildRepo) CreateGuild(_ context.Context, guild storage.Guild) (*storage.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.users[guild.OwnerID]; !ok {
		return nil, storage.ErrNotFound
	}
	now := g.now().UTC()
	guild.CreatedAt = now
	g.guilds[guild.ID] = guild
	g.members[memberKey{guild.ID, guild.OwnerID}] = storage.Member{GuildID: guild.ID, UserID: guild.OwnerID, JoinedAt: now}
	return &guild, nil
}

func (g *guildRepo) GetGuild(_ context.Context, id string) (*storage.Guild, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	guild, ok := g.guilds[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &guild, nil
}

func (g *guildRepo) UpdateGuild(_ context.Context, guild storage.Guild) (*storage.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.guilds[guild.ID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	existing.Name = guild.Name
	g.guilds[guild.ID] = existing
	return &existing, nil
}

func (g *guildRepo) DeleteGuild(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.guilds[id]; !ok {
		return storage.ErrNotFound
	}
	g.deleteGuildLocked(id)
	return nil
}

func (g *guildRepo) deleteGuildLocked(id string) {
	delete(g.guilds, id)
	for cid, c := range g.channels {
		if c.GuildID == id {
			delete(g.channels, cid)
		}
	}
	for iid, inv := range g.invites {
		if inv.GuildID == id {
			delete(g.invites, iid)
		}
	}
	for key := range g.members {
		if key.guildID == id {
			delete(g.members, key)
		}
	}
}

func (g *guildRepo) CreateChannel(_ context.Context, channel storage.Channel) (*storage.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.guilds[channel.GuildID]; !ok {
		return nil, storage.ErrNotFound
	}
	channel.CreatedAt = g.now().UTC()
	g.channels[channel.ID] = channel
	return &channel, nil
}

func (g *guildRepo) GetChannel(_ context.Context, id string) (*storage.Channel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	channel, ok := g.channels[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &channel, nil
}

func (g *guildRepo) AddMember(_ context.Context, guildID, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.guilds[guildID]; !ok {
		return false, storage.ErrNotFound
	}
	if _, ok := g.users[userID]; !ok {
		return false, storage.ErrNotFound
	}
	key := memberKey{guildID, userID}
	if _, ok := g.members[key]; ok {
		return false, nil
	}
	g.members[key] = storage.Member{GuildID: guildID, UserID: userID, JoinedAt: g.now().UTC()}
	return true, nil
}

func (g *guildRepo) IsMember(_ context.Context, guildID, userID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[memberKey{guildID, userID}]
	return ok, nil
}

func (g *guildRepo) CreateInvite(_ context.Context, invite storage.Invite) (*storage.Invite, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.guilds[invite.GuildID]; !ok {
		return nil, storage.ErrNotFound
	}
	if _, ok := g.channels[invite.ChannelID]; !ok {
		return nil, storage.ErrNotFound
	}
	invite.CreatedAt = g.now().UTC()
	g.invites[invite.ID] = invite
	return &invite, nil
}

func (g *guildRepo) GetInvite(_ context.Context, id string) (*storage.Invite, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	invite, ok := g.invites[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &invite, nil
}

func (g *guildRepo) DeleteExpiredInvites(_ context.Context, now time.Time) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var n int64
	for id, invite := range g.invites {
		if invite.Expired(now) {
			delete(g.invites, id)
			n++
		}
	}
	return n, nil
}
