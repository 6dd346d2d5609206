package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrEmailExists is returned when a user write collides with another
	// account's email.
	ErrEmailExists = errors.New("email already exists")

	// ErrTagExists is returned when a user write collides on the
	// (username, discriminator) pair.
	ErrTagExists = errors.New("username and discriminator already exist")
)

// User is a persisted identity. Hash is the argon2id password hash and
// doubles as the signing secret for the user's bearer tokens.
type User struct {
	ID            string
	Username      string
	Discriminator string
	Email         string
	Hash          string
	CreatedAt     time.Time
}

type Guild struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

type Channel struct {
	ID        string
	Name      string
	GuildID   string
	CreatedAt time.Time
}

type Invite struct {
	ID        string
	GuildID   string
	ChannelID string
	CreatorID string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Expired reports whether the invite has passed its expiry at now.
func (i Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

type Member struct {
	GuildID  string
	UserID   string
	JoinedAt time.Time
}

// CredentialStore is the read side of user storage used by authentication.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

type UserRepository interface {
	CredentialStore
	CountByUsername(ctx context.Context, username string) (int, error)
	Create(ctx context.Context, user User) (*User, error)
	Update(ctx context.Context, user User) (*User, error)
	Delete(ctx context.Context, id string) error
}

type GuildRepository interface {
	// CreateGuild stores the guild and its owner's membership together.
	CreateGuild(ctx context.Context, guild Guild) (*Guild, error)
	GetGuild(ctx context.Context, id string) (*Guild, error)
	UpdateGuild(ctx context.Context, guild Guild) (*Guild, error)
	DeleteGuild(ctx context.Context, id string) error

	CreateChannel(ctx context.Context, channel Channel) (*Channel, error)
	GetChannel(ctx context.Context, id string) (*Channel, error)

	// AddMember inserts the membership if absent. It reports false when the
	// user was already a member; the check and insert are one statement.
	AddMember(ctx context.Context, guildID, userID string) (bool, error)
	IsMember(ctx context.Context, guildID, userID string) (bool, error)

	CreateInvite(ctx context.Context, invite Invite) (*Invite, error)
	GetInvite(ctx context.Context, id string) (*Invite, error)
	DeleteExpiredInvites(ctx context.Context, now time.Time) (int64, error)
}

// Repository groups data access by domain.
type Repository interface {
	Users() UserRepository
	Guilds() GuildRepository
	Ping(ctx context.Context) error

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
