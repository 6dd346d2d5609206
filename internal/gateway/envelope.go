// Package gateway speaks the message protocol shared with the realtime
// gateway: typed envelopes out, confirm_auth requests in.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tinychat/server/internal/storage"
)

// Envelope types.
const (
	TypeDispatch    = "dispatch"
	TypeInternal    = "internal"
	TypeConfirmAuth = "confirm_auth"
)

// Dispatch and internal event names.
const (
	EventGuildCreate    = "guild_create"
	EventGuildUpdate    = "guild_update"
	EventGuildDelete    = "guild_delete"
	EventChannelCreate  = "channel_create"
	EventGuildMemberAdd = "guild_member_add"
	EventInviteCreate   = "invite_create"
	EventUserUpdate     = "user_update"
	EventDisconnect     = "disconnect"
)

var ErrMalformedMessage = errors.New("malformed gateway message")

// Envelope is the wire form of every message on a channel.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Dispatch describes a state mutation. ID is the acting user; exactly one
// resource field is set.
type Dispatch struct {
	Type    string           `json:"type"`
	ID      string           `json:"id"`
	Guild   *GuildSnapshot   `json:"guild,omitempty"`
	Channel *ChannelSnapshot `json:"channel,omitempty"`
	Invite  *InviteSnapshot  `json:"invite,omitempty"`
	Member  *MemberSnapshot  `json:"member,omitempty"`
	User    *UserSnapshot    `json:"user,omitempty"`
}

// Internal is a control directive for the gateway itself.
type Internal struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ConfirmAuth answers a confirm_auth request. ID is null when invalid.
type ConfirmAuth struct {
	ID    *string `json:"id"`
	Valid bool    `json:"valid"`
	Token string  `json:"token"`
}

type UserSnapshot struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	CreatedAt     time.Time `json:"created_at"`
}

type GuildSnapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ChannelSnapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GuildID   string    `json:"guild_id"`
	CreatedAt time.Time `json:"created_at"`
}

type InviteSnapshot struct {
	ID        string     `json:"id"`
	GuildID   string     `json:"guild_id"`
	ChannelID string     `json:"channel_id"`
	CreatorID string     `json:"creator_id"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type MemberSnapshot struct {
	GuildID string       `json:"guild_id"`
	User    UserSnapshot `json:"user"`
}

func NewUserSnapshot(u storage.User) *UserSnapshot {
	return &UserSnapshot{ID: u.ID, Username: u.Username, Discriminator: u.Discriminator, CreatedAt: u.CreatedAt}
}

func NewGuildSnapshot(g storage.Guild) *GuildSnapshot {
	return &GuildSnapshot{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, CreatedAt: g.CreatedAt}
}

func NewChannelSnapshot(c storage.Channel) *ChannelSnapshot {
	return &ChannelSnapshot{ID: c.ID, Name: c.Name, GuildID: c.GuildID, CreatedAt: c.CreatedAt}
}

func NewInviteSnapshot(i storage.Invite) *InviteSnapshot {
	return &InviteSnapshot{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		CreatorID: i.CreatorID,
		ExpiresAt: i.ExpiresAt,
		CreatedAt: i.CreatedAt,
	}
}

// InboundMessage is a request received on the rest channel. The concrete
// types are ConfirmAuthRequest and UnknownMessage.
type InboundMessage interface {
	inbound()
}

type ConfirmAuthRequest struct {
	Token string
}

// UnknownMessage is any well-formed message whose type this service does
// not handle. It is ignored.
type UnknownMessage struct {
	Type string
}

func (ConfirmAuthRequest) inbound() {}
func (UnknownMessage) inbound()     {}

// ParseInbound decodes a rest channel payload.
func ParseInbound(payload []byte) (InboundMessage, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch raw.Type {
	case TypeConfirmAuth:
		var data struct {
			Token *string `json:"token"`
		}
		if len(raw.Data) == 0 {
			return nil, fmt.Errorf("%w: confirm_auth without data", ErrMalformedMessage)
		}
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		if data.Token == nil {
			return nil, fmt.Errorf("%w: confirm_auth without token", ErrMalformedMessage)
		}
		return ConfirmAuthRequest{Token: *data.Token}, nil
	default:
		return UnknownMessage{Type: raw.Type}, nil
	}
}
