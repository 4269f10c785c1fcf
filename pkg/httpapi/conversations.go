package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handler) ensureDirect(w http.ResponseWriter, r *http.Request) {
	id, err := h.core.Conversations.EnsureOneToOne(r.Context(), userID(r), chi.URLParam(r, "otherUserId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"conversationId": id})
}

type groupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	g, err := h.core.Conversations.CreateGroup(r.Context(), userID(r), req.Name, req.Members)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusCreated, g)
}

func (h *handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	g, err := h.core.Conversations.UpdateGroup(r.Context(), chi.URLParam(r, "groupId"), userID(r), req.Name)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

func (h *handler) addMembers(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	g, err := h.core.Conversations.AddMembers(r.Context(), chi.URLParam(r, "groupId"), userID(r), req.Members)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, g)
}

func (h *handler) members(w http.ResponseWriter, r *http.Request) {
	ids, err := h.core.Conversations.Members(r.Context(), chi.URLParam(r, "groupId"), userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, ids)
}

func (h *handler) archive(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Conversations.Archive(r.Context(), chi.URLParam(r, "conversationId"), userID(r)); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "conversation archived")
}

func (h *handler) unarchive(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Conversations.Unarchive(r.Context(), chi.URLParam(r, "conversationId"), userID(r)); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "conversation unarchived")
}

func (h *handler) listArchived(w http.ResponseWriter, r *http.Request) {
	convs, err := h.core.Conversations.ListArchived(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, convs)
}

func (h *handler) listInbox(w http.ResponseWriter, r *http.Request) {
	entries, err := h.core.Inbox.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationId")
	if _, err := h.core.Conversations.Participant(r.Context(), convID, userID(r)); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.core.Inbox.ResetUnread(r.Context(), userID(r), convID); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "unread count reset")
}
