package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mahaj/chatcore/pkg/model"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    model.ErrorKind `json:"code"`
	Message string          `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeOK(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message})
}

// writeError maps a domain error to its status. Only internal errors are
// logged; the client sees a generic message for them.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	var de *model.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, envelope{Error: &errorBody{Code: kind, Message: msg}})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindInvalidArgument:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.InvalidArgument("invalid request body")
	}
	return nil
}

func parseMessageID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.InvalidArgument("malformed message id %q", raw)
	}
	return id, nil
}

// messageIDs accepts ids as JSON strings, since snowflake ids overflow
// JavaScript numbers.
type messageIDs []string

func (ids messageIDs) parse() ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, raw := range ids {
		id, err := parseMessageID(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
