package handlers

import (
	"net/http"

	"fedbox/application/services"
	"fedbox/interfaces/http/rest/middleware"
	"fedbox/pkg/auth"
	"fedbox/pkg/common"
	apperrors "fedbox/pkg/errors"
)

// TokenHandler exchanges actor credentials for a bearer token.
type TokenHandler struct {
	actors *services.ActorService
	tokens *auth.TokenIssuer
	errors *apperrors.ErrorHandler
}

// NewTokenHandler creates the handler.
func NewTokenHandler(actors *services.ActorService, tokens *auth.TokenIssuer, errors *apperrors.ErrorHandler) *TokenHandler {
	return &TokenHandler{actors: actors, tokens: tokens, errors: errors}
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Actor       string `json:"actor"`
}

// Issue handles POST /token.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := common.ParseJSONBody(r, &req, 4096); err != nil {
		h.errors.Handle(w, r, apperrors.NewValidationError("malformed token request"))
		return
	}
	if req.Username == "" || req.Password == "" {
		h.errors.Handle(w, r, apperrors.NewValidationError("username and password are required"))
		return
	}

	actor, err := h.actors.ByUsername(r.Context(), middleware.RequestPrefix(r), req.Username)
	if err != nil {
		// Do not reveal whether the username exists.
		h.errors.Handle(w, r, apperrors.NewUnauthorizedError("invalid credentials"))
		return
	}
	if err := h.actors.VerifyPassword(r.Context(), actor, req.Password); err != nil {
		h.errors.Handle(w, r, apperrors.NewUnauthorizedError("invalid credentials"))
		return
	}

	token, err := h.tokens.Issue(actor.Value)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Actor:       actor.Value,
	})
}
