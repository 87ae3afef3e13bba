package http

import (
	"net/http"
	"strings"

	"github.com/ddmuddatsir/marketin-website-sub000/pkg/httputil"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/validator"
)

// NetworkRequest is the JSON request body reporting connectivity.
type NetworkRequest struct {
	Online *bool `json:"online" validate:"required"`
}

// IdentityRequest is the JSON request body for sign-in or token refresh.
type IdentityRequest struct {
	Token string `json:"token" validate:"required"`
}

// GetSession handles GET /api/v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w)
}

// PutNetwork handles PUT /api/v1/session/network
func (h *Handler) PutNetwork(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.session.SetOnline(*req.Online)
	h.writeSession(w)
}

// PutIdentity handles PUT /api/v1/session/identity. The token is issued by the
// storefront's identity provider; its claims name the user.
func (h *Handler) PutIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token := stripBearer(req.Token)
	claims, err := h.tokens.Parse(token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.session.SignIn(claims.UserID, token, claims.ExpiresAt); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w)
}

// DeleteIdentity handles DELETE /api/v1/session/identity
func (h *Handler) DeleteIdentity(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w)
}

// PutIdentityLoading handles PUT /api/v1/session/identity/loading
func (h *Handler) PutIdentityLoading(w http.ResponseWriter, r *http.Request) {
	if err := h.session.MarkLoading(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w)
}

func (h *Handler) writeSession(w http.ResponseWriter) {
	identity, online := h.session.Snapshot()
	resp := SessionResponse{
		ProfileID: h.profileID,
		Online:    online,
		Identity:  identity.State.String(),
		UserID:    identity.UserID,
	}
	if !identity.ExpiresAt.IsZero() {
		exp := identity.ExpiresAt
		resp.ExpiresAt = &exp
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

func stripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
