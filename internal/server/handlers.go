package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"

	"github.com/terraconstructs/gridauth/internal/app"
	"github.com/terraconstructs/gridauth/internal/auth"
	authmw "github.com/terraconstructs/gridauth/internal/middleware"
	"github.com/terraconstructs/gridauth/internal/repository"
	"github.com/terraconstructs/gridauth/internal/services/iam"
)

type handlers struct {
	app    *app.App
	logger hclog.Logger
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// UserResponse represents user data in API responses.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// WhoamiResponse is returned by GET /auth/whoami.
type WhoamiResponse struct {
	User        UserResponse `json:"user"`
	Via         string       `json:"via"`
	ViaRemember bool         `json:"via_remember"`
}

// CreateTokenRequest is the body of POST /api/tokens. Credentials are required unless the
// request is already authenticated.
type CreateTokenRequest struct {
	Email    string            `json:"email,omitempty"`
	Password string            `json:"password,omitempty"`
	Name     string            `json:"name,omitempty"`
	Type     string            `json:"type,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TokenListResponse is returned by GET /api/tokens.
type TokenListResponse struct {
	Tokens []iam.TokenRecord `json:"tokens"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	sa, ok := authmw.SessionAuthenticatorFromContext(r.Context())
	if !ok {
		h.writeAuthError(w, r, auth.ErrConfiguration)
		return
	}
	if err := sa.Attempt(r.Context(), req.Email, req.Password, req.Remember); err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WhoamiResponse{
		User: userResponse(sa.User()),
		Via:  iam.ViaSession,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	sa, ok := authmw.SessionAuthenticatorFromContext(r.Context())
	if !ok {
		h.writeAuthError(w, r, auth.ErrConfiguration)
		return
	}
	recycle, _ := strconv.ParseBool(r.URL.Query().Get("recycle"))
	if err := sa.Logout(r.Context(), recycle); err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) whoami(w http.ResponseWriter, r *http.Request) {
	sa, _ := authmw.SessionAuthenticatorFromContext(r.Context())
	writeJSON(w, http.StatusOK, WhoamiResponse{
		User:        userResponse(sa.User()),
		Via:         iam.ViaSession,
		ViaRemember: sa.ViaRemember(),
	})
}

func (h *handlers) createToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := []iam.GenerateOption{iam.WithName(req.Name)}
	if req.Type != "" {
		opts = append(opts, iam.WithTokenType(req.Type))
	}
	if len(req.Metadata) > 0 {
		opts = append(opts, iam.WithMetadata(req.Metadata))
	}

	var (
		token *iam.BearerToken
		err   error
	)
	if user, ok := auth.UserFromContext(r.Context()); ok {
		token, err = h.app.APIToken.Generate(r.Context(), user, opts...)
	} else {
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}
		token, err = h.app.APIToken.Attempt(r.Context(), req.Email, req.Password, opts...)
	}
	if errors.Is(err, auth.ErrConfiguration) && req.Type != "" {
		writeError(w, http.StatusBadRequest, "invalid token type")
		return
	}
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (h *handlers) listTokens(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	tokens, err := h.app.APIToken.ListTokensForUser(r.Context(), user)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenListResponse{Tokens: tokens})
}

func (h *handlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	err := h.app.APIToken.RevokeToken(r.Context(), user, chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	state, _ := auth.RequestStateFromContext(r.Context())
	writeJSON(w, http.StatusOK, WhoamiResponse{
		User: userResponse(state.User()),
		Via:  state.Via(),
	})
}

func (h *handlers) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	authmw.WriteAuthError(w, r, h.logger, err)
}

type profile interface {
	Email() string
	Name() string
}

func userResponse(user auth.Authenticatable) UserResponse {
	if user == nil {
		return UserResponse{}
	}
	resp := UserResponse{ID: user.GetID()}
	if p, ok := user.(profile); ok {
		resp.Email = p.Email()
		resp.Name = p.Name()
	}
	return resp
}

func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, authmw.ErrorResponse{Error: msg})
}
