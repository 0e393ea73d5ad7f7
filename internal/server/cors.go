// Package server contains HTTP handlers and middleware for the store API.
// This file implements the origin guard: allow-list gating plus CORS headers.
package server

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/tiendaonline/tienda-api/internal/apperr"
)

const corsMaxAge = 600 // seconds

// OriginPolicy is the immutable allow-list of browser origins.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy builds a policy from origins. Empty entries are dropped so
// an unset production origin never matches anything.
func NewOriginPolicy(origins ...string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "" {
			continue
		}
		p.allowed[o] = struct{}{}
	}
	return p
}

// Allowed reports whether a request carrying origin may proceed. An absent
// origin (same-origin, server-to-server, curl) is always allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// originGuard rejects disallowed origins through the fault boundary before
// any later stage runs. Allowed requests go through rs/cors, which emits the
// credentialed CORS headers and answers preflights. Any other OPTIONS request
// also ends here with 204.
func (h *Handler) originGuard(next http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc:  h.origins.Allowed,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost,
			http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{headerCorrelationID},
		MaxAge:         corsMaxAge,
	})
	withCORS := c.Handler(optionsNoContent(next))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !h.origins.Allowed(origin) {
			corsRejections.Inc()
			h.logger.Warn("cors origin rejected", "origin", origin, "path", r.URL.Path, "correlationId", CorrelationIDFrom(r.Context()))
			h.fault.Respond(w, r, apperr.CorsRejected(origin))
			return
		}
		withCORS.ServeHTTP(w, r)
	})
}

// optionsNoContent answers OPTIONS requests that are not CORS preflights,
// such as ones without an Origin or Access-Control-Request-Method header.
func optionsNoContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Set("Allow", "GET, HEAD, POST, PUT, PATCH, DELETE")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
