package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mahaj/chatcore/pkg/model"
)

type loginRequest struct {
	UserID   string `json:"user_id"`
	Name     string `json:"fullname"`
	Username string `json:"username"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// login issues a token for user_id, creating the user record on first
// sight. Credential checks belong to the identity service in front of this
// one.
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, h.log, model.InvalidArgument("user_id is required"))
		return
	}

	ctx := r.Context()
	u, err := h.core.Users.Get(ctx, req.UserID)
	if model.IsNotFound(err) {
		u = &model.User{ID: req.UserID, Name: req.Name, Username: req.Username}
		if u.Username == "" {
			u.Username = req.UserID
		}
		err = h.core.Users.Put(ctx, u)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	token, err := h.signer.GenerateToken(u.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, loginResponse{Token: token, User: u})
}

func (h *handler) block(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Messages.Block(r.Context(), userID(r), chi.URLParam(r, "otherUserId")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "user blocked")
}

func (h *handler) unblock(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Messages.Unblock(r.Context(), userID(r), chi.URLParam(r, "otherUserId")); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "user unblocked")
}

func (h *handler) listBlocked(w http.ResponseWriter, r *http.Request) {
	users, err := h.core.Messages.ListBlocked(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

func (h *handler) online(w http.ResponseWriter, r *http.Request) {
	ids, err := h.core.Presence.Online(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, ids)
}
