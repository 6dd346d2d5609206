package handlers

import (
	"net/http"
	"time"

	"github.com/tinychat/server/internal/domain/guilds"
	"github.com/tinychat/server/internal/storage"
)

type GuildsHandler struct {
	Service *guilds.Service
	Env     string
}

func NewGuildsHandler(service *guilds.Service, env string) *GuildsHandler {
	return &GuildsHandler{Service: service, Env: env}
}

type guildResponse struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Owner *publicUserResponse `json:"owner"`
}

type channelResponse struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Guild guildResponse `json:"guild"`
}

type inviteResponse struct {
	ID        string     `json:"id"`
	GuildID   string     `json:"guild_id"`
	ChannelID string     `json:"channel_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type guildRequest struct {
	Name string `json:"name" validate:"required,max=32"`
}

type channelRequest struct {
	Name string `json:"name" validate:"required,max=32"`
}

type inviteRequest struct {
	ChannelID     string `json:"channel_id" validate:"required"`
	MaxAgeSeconds int64  `json:"max_age_seconds" validate:"min=0,max=604800"`
}

func newGuildResponse(g storage.Guild, owner *storage.User) guildResponse {
	return guildResponse{ID: g.ID, Name: g.Name, Owner: newPublicUserResponse(owner)}
}

func (h *GuildsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req guildRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	guild, err := h.Service.CreateGuild(r.Context(), *user, req.Name)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, newGuildResponse(*guild, user))
}

func (h *GuildsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	view, err := h.Service.GetGuild(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newGuildResponse(view.Guild, view.Owner))
}

func (h *GuildsHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req guildRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	guild, err := h.Service.UpdateGuild(r.Context(), *user, pathParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newGuildResponse(*guild, user))
}

func (h *GuildsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteGuild(r.Context(), *user, pathParam(r, "id")); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GuildsHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req channelRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	guildID := pathParam(r, "id")
	channel, err := h.Service.CreateChannel(r.Context(), *user, guildID, req.Name)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	view, err := h.Service.GetGuild(r.Context(), guildID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, channelResponse{
		ID:    channel.ID,
		Name:  channel.Name,
		Guild: newGuildResponse(view.Guild, view.Owner),
	})
}

func (h *GuildsHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	invite, err := h.Service.CreateInvite(r.Context(), *user, pathParam(r, "id"), req.ChannelID, time.Duration(req.MaxAgeSeconds)*time.Second)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponse{
		ID:        invite.ID,
		GuildID:   invite.GuildID,
		ChannelID: invite.ChannelID,
		ExpiresAt: invite.ExpiresAt,
	})
}

// JoinInvite handles POST /v1/invites/{id}.
func (h *GuildsHandler) JoinInvite(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	guild, err := h.Service.JoinInvite(r.Context(), *user, pathParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	view, err := h.Service.GetGuild(r.Context(), guild.ID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newGuildResponse(view.Guild, view.Owner))
}
