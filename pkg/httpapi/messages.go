package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mahaj/chatcore/pkg/messaging"
)

func (h *handler) sendDirect(w http.ResponseWriter, r *http.Request) {
	var req messaging.SendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	msg, err := h.core.Messages.SendDirect(r.Context(), userID(r), chi.URLParam(r, "receiverId"), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusCreated, msg.View())
}

func (h *handler) sendGroup(w http.ResponseWriter, r *http.Request) {
	var req messaging.SendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	msg, err := h.core.Messages.SendGroup(r.Context(), userID(r), chi.URLParam(r, "conversationId"), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusCreated, msg.View())
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	views, err := h.core.Messages.ListConversation(r.Context(), chi.URLParam(r, "conversationId"), userID(r), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, views)
}

func (h *handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.markReceipt(w, r, false)
}

func (h *handler) markSeen(w http.ResponseWriter, r *http.Request) {
	h.markReceipt(w, r, true)
}

func (h *handler) markReceipt(w http.ResponseWriter, r *http.Request, seen bool) {
	id, err := parseMessageID(chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	mark := h.core.Delivery.MarkDelivered
	if seen {
		mark = h.core.Delivery.MarkSeen
	}
	changed, err := mark(r.Context(), id, userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *handler) receipts(w http.ResponseWriter, r *http.Request) {
	id, err := parseMessageID(chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rec, err := h.core.Delivery.GetReceipts(r.Context(), id, userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

type idsRequest struct {
	MessageIDs messageIDs `json:"messageIds"`
}

func (h *handler) deleteForMe(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeIDs(w, r)
	if !ok {
		return
	}
	if err := h.core.Messages.DeleteForMe(r.Context(), userID(r), ids); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "messages deleted")
}

func (h *handler) deleteForEveryone(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeIDs(w, r)
	if !ok {
		return
	}
	if err := h.core.Messages.DeleteForEveryone(r.Context(), userID(r), ids); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeOK(w, "messages deleted for everyone")
}

func (h *handler) clearChat(w http.ResponseWriter, r *http.Request) {
	n, err := h.core.Messages.ClearDirect(r.Context(), userID(r), chi.URLParam(r, "receiverId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *handler) decodeIDs(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	var req idsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return nil, false
	}
	ids, err := req.MessageIDs.parse()
	if err != nil {
		writeError(w, r, h.log, err)
		return nil, false
	}
	return ids, true
}

type forwardRequest struct {
	MessageIDs  messageIDs `json:"messageIds"`
	ReceiverIDs []string   `json:"receiverIds"`
}

func (h *handler) forward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	ids, err := req.MessageIDs.parse()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	msgs, err := h.core.Messages.Forward(r.Context(), userID(r), ids, req.ReceiverIDs)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"forwarded": len(msgs)})
}

func (h *handler) star(w http.ResponseWriter, r *http.Request) {
	h.setStar(w, r, true)
}

func (h *handler) unstar(w http.ResponseWriter, r *http.Request) {
	h.setStar(w, r, false)
}

func (h *handler) setStar(w http.ResponseWriter, r *http.Request, starred bool) {
	id, err := parseMessageID(chi.URLParam(r, "messageId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if starred {
		err = h.core.Messages.Star(r.Context(), userID(r), id)
	} else {
		err = h.core.Messages.Unstar(r.Context(), userID(r), id)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if starred {
		writeOK(w, "message starred")
		return
	}
	writeOK(w, "message unstarred")
}

func (h *handler) listStarred(w http.ResponseWriter, r *http.Request) {
	views, err := h.core.Messages.ListStarred(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, http.StatusOK, views)
}
