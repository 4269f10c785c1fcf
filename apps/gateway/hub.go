package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chatcore/pkg/auth"
	"github.com/mahaj/chatcore/pkg/core"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/model"
	"golang.org/x/time/rate"
)

// envelopeSource is the inbound side of the relay.
type envelopeSource interface {
	Consume(ctx context.Context, groupID string, handle func(model.Envelope)) error
}

// Hub accepts websocket clients for one gateway node and delivers relayed
// envelopes to the sessions this node holds.
type Hub struct {
	core     *core.Core
	signer   *auth.Signer
	log      *slog.Logger
	metrics  metrics.Recorder
	upgrader websocket.Upgrader

	eventRate  rate.Limit
	eventBurst int
}

type HubConfig struct {
	EventRate  float64
	EventBurst int
	// AllowedOrigin is matched against the Origin header; "*" allows any.
	AllowedOrigin string
}

func NewHub(c *core.Core, signer *auth.Signer, cfg HubConfig, log *slog.Logger, rec metrics.Recorder) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	h := &Hub{
		core:       c,
		signer:     signer,
		log:        log,
		metrics:    rec,
		eventRate:  rate.Limit(cfg.EventRate),
		eventBurst: cfg.EventBurst,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowedOrigin == "" || cfg.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == cfg.AllowedOrigin
		},
	}
	return h
}

// Run consumes relayed envelopes until ctx ends. groupID must be unique to
// this node so that every gateway sees every envelope.
func (h *Hub) Run(ctx context.Context, src envelopeSource, groupID string) error {
	h.log.Info("relay consumer started", slog.String("group_id", groupID))
	return src.Consume(ctx, groupID, h.deliver)
}

func (h *Hub) deliver(env model.Envelope) {
	h.metrics.RecordRelay("consume", nil)
	h.core.Fanout.DeliverLocal(env)
}

// ServeWs authenticates the upgrade request and starts the client pumps.
// The token comes from the Authorization header or the token query
// parameter.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	claims, err := h.signer.FromRequest(r)
	if err != nil {
		h.log.Warn("websocket rejected", slog.Any("error", err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := newClient(h, conn, claims.UserID)
	h.log.Debug("websocket connected", slog.String("user_id", claims.UserID), slog.String("session_id", client.id))

	go client.writePump()
	go client.readPump()
}
