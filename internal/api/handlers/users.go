package handlers

import (
	"net/http"

	"github.com/tinychat/server/internal/domain/users"
	"github.com/tinychat/server/internal/storage"
)

type UsersHandler struct {
	Service *users.Service
	Env     string
}

func NewUsersHandler(service *users.Service, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

// userResponse is the caller's own account.
type userResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Email         string `json:"email"`
}

// publicUserResponse is how other users are shown.
type publicUserResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

func newUserResponse(u *storage.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Discriminator: u.Discriminator, Email: u.Email}
}

func newPublicUserResponse(u *storage.User) *publicUserResponse {
	if u == nil {
		return nil
	}
	return &publicUserResponse{ID: u.ID, Username: u.Username, Discriminator: u.Discriminator}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,max=128"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=1,max=32"`
	Password *string `json:"password" validate:"omitempty,min=1,max=128"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
}

// Register handles POST /v1/users/@me.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	user, err := h.Service.Register(r.Context(), users.RegisterParams{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

// Token handles POST /v1/users/@me/token.
func (h *UsersHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	token, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeBody(w, r, &req, h.Env) {
		return
	}

	updated, err := h.Service.Update(r.Context(), *user, users.UpdateParams{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), *user); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
