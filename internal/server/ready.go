// Package server contains HTTP handlers for the store API.
// This file implements the readiness endpoint and the optional readiness gate.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tiendaonline/tienda-api/internal/apperr"
)

const readyPingTimeout = 5 * time.Second

// readyHandler returns 200 "ready" once the database connection is up and
// answers a ping, 503 otherwise.
func (h *Handler) readyHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.checkReady(r.Context()); err != nil {
		h.fault.RespondStatus(w, r, http.StatusServiceUnavailable, err)
		return
	}
	w.Header().Set(headerContentType, contentTypeText)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) checkReady(ctx context.Context) error {
	if h.ready != nil && !h.ready.Ready() {
		return apperr.Unavailable("database not ready")
	}
	if h.pinger == nil {
		return nil
	}
	// Bound the ping so a hung database does not hang the probe.
	ctx, cancel := context.WithTimeout(ctx, readyPingTimeout)
	defer cancel()
	if err := h.pinger.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, fmt.Errorf("ping: %w", err), "database not ready")
	}
	return nil
}

// readinessGate answers route groups with Unavailable until the supervisor
// reports a connection. Only installed when READINESS_GATE is set.
func (h *Handler) readinessGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.ready != nil && !h.ready.Ready() {
			h.fault.Respond(w, r, apperr.Unavailable("database not ready"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
