// Package server contains the request-ingress pipeline of the store API:
// origin guard, body interpreter, router table, fault boundary and the
// diagnostic endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tiendaonline/tienda-api/internal/apperr"
	"github.com/tiendaonline/tienda-api/internal/config"
)

type contextKey string

const (
	contextKeyCorrelationID contextKey = "correlationId"

	headerContentType   = "Content-Type"
	headerCorrelationID = "X-Correlation-Id"

	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"

	rootMessage = "🚀 API activa y funcionando"
)

// Readiness reports whether the shared database connection is usable.
type Readiness interface {
	Ready() bool
}

// Pinger is implemented by stores that can probe the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries everything New needs. Nothing here is read from globals.
type Options struct {
	Config    config.Config
	Mounts    []Mount
	Readiness Readiness
	Pinger    Pinger
	Logger    *slog.Logger
}

// Handler wires the ingress pipeline on a chi router.
type Handler struct {
	cfg     config.Config
	logger  *slog.Logger
	origins *OriginPolicy
	body    *BodyInterpreter
	fault   *Boundary
	ready   Readiness
	pinger  Pinger
	mounts  []Mount
	router  chi.Router
}

// New validates the mount table and builds the pipeline.
func New(opts Options) (*Handler, error) {
	if err := validateMounts(opts.Mounts); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:     opts.Config,
		logger:  logger,
		origins: NewOriginPolicy(opts.Config.AllowedOrigins()...),
		body:    NewBodyInterpreter(opts.Config.BodyLimit, WebhookPrefix),
		fault:   NewBoundary(logger, opts.Config.LegacyErrorStatus),
		ready:   opts.Readiness,
		pinger:  opts.Pinger,
		mounts:  append([]Mount(nil), opts.Mounts...),
		router:  chi.NewRouter(),
	}
	h.registerRoutes()
	return h, nil
}

// ServeHTTP runs the full pipeline.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Router returns the pipeline as an http.Handler.
func (h *Handler) Router() http.Handler {
	return h.router
}

// Mounts returns a copy of the mount table.
func (h *Handler) Mounts() []Mount {
	return append([]Mount(nil), h.mounts...)
}

// registerRoutes fixes the middleware order. The fault boundary sits just
// inside the access log so every later stage, including the origin guard and
// the body interpreter, reports through it. The body interpreter runs its
// raw-body rules before the structured parser.
func (h *Handler) registerRoutes() {
	h.router.Use(
		h.correlationMiddleware,
		h.loggingMiddleware,
		h.fault.Middleware,
		h.timeoutMiddleware,
		h.originGuard,
		h.bodyMiddleware,
	)

	// Set before mounting so chi sub-routers inherit them.
	h.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fault.RespondStatus(w, r, http.StatusNotFound, apperr.NotFound(fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path)))
	})
	h.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		// a method mismatch is an unmatched route in legacy mode
		status := http.StatusMethodNotAllowed
		if h.cfg.LegacyErrorStatus {
			status = http.StatusNotFound
		}
		h.fault.RespondStatus(w, r, status, apperr.MethodNotAllowed(r.Method, r.URL.Path))
	})

	h.router.Get("/", h.root)
	h.router.Get("/health", h.health)
	h.router.Get("/ready", h.readyHandler)

	groups := h.router
	if h.cfg.ReadinessGate {
		groups = h.router.With(h.readinessGate)
	}
	for _, m := range h.mounts {
		groups.Mount(m.Prefix, m.Group)
	}
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerContentType, contentTypeText)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rootMessage))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(headerContentType, contentTypeText)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerCorrelationID, id)
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFrom returns the request's correlation id, or "".
func CorrelationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	// the status line is already out; a failed write only means the client left
	_, _ = w.Write(payload)
	return nil
}
