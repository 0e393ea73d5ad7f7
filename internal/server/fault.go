package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/tiendaonline/tienda-api/internal/apperr"
	"github.com/tiendaonline/tienda-api/internal/storage"
)

const faultMessage = "Algo salió mal"

// errorEnvelope is the single client-facing shape of every failure.
type errorEnvelope struct {
	Mensaje string `json:"mensaje"`
	Error   string `json:"error"`
}

// HandlerFunc is the signature route groups implement. A returned error is
// handed to the fault boundary instead of being written by the handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type boundaryKey struct{}

// Boundary converts otherwise-unhandled failures into the error envelope.
type Boundary struct {
	logger *slog.Logger
	legacy bool
}

// NewBoundary returns a Boundary. With legacy set every handled failure is
// answered with 500.
func NewBoundary(logger *slog.Logger, legacy bool) *Boundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Boundary{logger: logger, legacy: legacy}
}

// Middleware recovers panics from everything below it and makes the boundary
// reachable from handlers adapted with Adapt.
func (b *Boundary) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(context.WithValue(r.Context(), boundaryKey{}, b))
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			b.logger.Error("panic recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
				"correlationId", CorrelationIDFrom(r.Context()),
			)
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			b.Respond(w, r, err)
		}()
		next.ServeHTTP(w, r)
	})
}

// Adapt turns a HandlerFunc into an http.Handler whose errors reach the
// boundary installed on the request. Without one, a default boundary is used.
func Adapt(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			boundaryFrom(r.Context()).Respond(w, r, err)
		}
	})
}

func boundaryFrom(ctx context.Context) *Boundary {
	if b, ok := ctx.Value(boundaryKey{}).(*Boundary); ok {
		return b
	}
	return NewBoundary(nil, false)
}

// Respond classifies err and writes the envelope.
func (b *Boundary) Respond(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if !b.legacy {
		status = apperr.StatusFor(classify(err).Kind)
	}
	b.RespondStatus(w, r, status, err)
}

// RespondStatus writes the envelope with a fixed status, bypassing
// classification.
func (b *Boundary) RespondStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	tagged := classify(err)
	faultsTotal.WithLabelValues(string(tagged.Kind)).Inc()

	attrs := []any{
		"error", fmt.Sprintf("%+v", err),
		"kind", tagged.Kind,
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
		"correlationId", CorrelationIDFrom(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		b.logger.Error("request failed", attrs...)
	} else {
		b.logger.Warn("request rejected", attrs...)
	}

	if started, ok := w.(interface{ Written() bool }); ok && started.Written() {
		b.logger.Warn("response already started, envelope dropped", "correlationId", CorrelationIDFrom(r.Context()))
		return
	}

	msg := tagged.Message
	if msg == "" {
		msg = err.Error()
	}
	_ = WriteJSON(w, status, errorEnvelope{Mensaje: faultMessage, Error: msg})
}

// classify tags well-known untagged errors. Anything unknown becomes an
// internal error whose message is the error text itself.
func classify(err error) *apperr.Error {
	var tagged *apperr.Error
	if errors.As(err, &tagged) {
		return tagged
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "not found", Err: err}
	case errors.Is(err, storage.ErrConflict):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "already exists", Err: err}
	case errors.Is(err, storage.ErrInvalidID):
		return &apperr.Error{Kind: apperr.KindValidation, Message: "invalid id", Err: err}
	case errors.Is(err, storage.ErrNotConnected):
		return &apperr.Error{Kind: apperr.KindUnavailable, Message: "database not ready", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &apperr.Error{Kind: apperr.KindUnavailable, Message: "request timed out", Err: err}
	}
	return &apperr.Error{Kind: apperr.KindInternal, Message: err.Error(), Err: err}
}
