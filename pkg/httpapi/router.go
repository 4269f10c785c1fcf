// Package httpapi exposes the chat core over JSON HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mahaj/chatcore/pkg/auth"
	"github.com/mahaj/chatcore/pkg/core"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

type Deps struct {
	Core   *core.Core
	Signer *auth.Signer

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	CORSAllowedOrigin string
	// RateLimit is per user; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	Logger *slog.Logger
}

type handler struct {
	core   *core.Core
	signer *auth.Signer
	log    *slog.Logger
}

// NewRouter returns the full API. Callers may mount more routes (the
// websocket endpoint) on the returned router.
func NewRouter(d Deps) chi.Router {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &handler{core: d.Core, signer: d.Signer, log: log}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware(log))
	r.Use(corsMiddleware(d.CORSAllowedOrigin))
	r.Use(loggingMiddleware(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeOK(w, "ok") })
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(d.Signer))
		if d.RateLimit > 0 {
			r.Use(newUserLimiter(d.RateLimit, d.RateBurst).middleware)
		}

		r.Route("/messages", func(r chi.Router) {
			r.Post("/send/{receiverId}", h.sendDirect)
			r.Post("/group/{conversationId}/send", h.sendGroup)
			r.Get("/conversation/{conversationId}", h.listMessages)
			r.Post("/delete/me", h.deleteForMe)
			r.Post("/delete/everyone", h.deleteForEveryone)
			r.Delete("/clear/{receiverId}", h.clearChat)
			r.Post("/forward", h.forward)
			r.Post("/star/{messageId}", h.star)
			r.Post("/unstar/{messageId}", h.unstar)
			r.Get("/starred/list", h.listStarred)

			r.Post("/{messageId}/delivered", h.markDelivered)
			r.Post("/{messageId}/seen", h.markSeen)
			r.Get("/{messageId}/receipts", h.receipts)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.listInbox)
			r.Get("/ensure/{otherUserId}", h.ensureDirect)
			r.Post("/group", h.createGroup)
			r.Post("/group/{groupId}/update", h.updateGroup)
			r.Post("/group/{groupId}/add-members", h.addMembers)
			r.Get("/group/{groupId}/members", h.members)
			r.Get("/archived/list", h.listArchived)
			r.Post("/{conversationId}/archive", h.archive)
			r.Post("/{conversationId}/unarchive", h.unarchive)
			r.Post("/{conversationId}/read", h.markRead)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/block/{otherUserId}", h.block)
			r.Post("/unblock/{otherUserId}", h.unblock)
			r.Get("/blocked/list", h.listBlocked)
		})

		r.Get("/presence/online", h.online)
	})

	return r
}

func userID(r *http.Request) string {
	c, _ := auth.ClaimsFrom(r.Context())
	return c.UserID
}
