// Package webhook receives payment-provider callbacks. It works on the raw
// request bytes so the provider signature can be checked before anything is
// decoded.
package webhook

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
	"github.com/tidwall/gjson"

	"github.com/tiendaonline/tienda-api/internal/apperr"
	"github.com/tiendaonline/tienda-api/internal/model"
	"github.com/tiendaonline/tienda-api/internal/server"
	"github.com/tiendaonline/tienda-api/internal/storage"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" pairs.
const SignatureHeader = "Stripe-Signature"

const defaultTolerance = stripewebhook.DefaultTolerance

var eventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment webhook deliveries, by result.",
	},
	[]string{"result"}, // accepted, duplicate, rejected
)

// Receiver records each provider event once.
type Receiver struct {
	store     storage.WebhookEventStore
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
	clock     func() time.Time
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithSecret enables signature verification. An empty secret disables it.
func WithSecret(secret string) Option {
	return func(rc *Receiver) { rc.secret = secret }
}

// WithTolerance bounds the accepted age of a signature timestamp.
func WithTolerance(d time.Duration) Option {
	return func(rc *Receiver) {
		if d > 0 {
			rc.tolerance = d
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(rc *Receiver) { rc.clock = clock }
}

// New returns a Receiver persisting events to store.
func New(store storage.WebhookEventStore, logger *slog.Logger, opts ...Option) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &Receiver{
		store:     store,
		logger:    logger,
		tolerance: defaultTolerance,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Routes returns the sub-router mounted on the webhook prefix.
func (rc *Receiver) Routes() chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/", server.Adapt(rc.receive))
	return r
}

type receipt struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

func (rc *Receiver) receive(w http.ResponseWriter, r *http.Request) error {
	raw := server.RawBodyFrom(r)
	switch {
	case raw == nil:
		eventsTotal.WithLabelValues("rejected").Inc()
		return apperr.Wrap(apperr.KindBodyParse, errors.New("raw body not captured"), "webhook body must be application/json")
	case len(raw) == 0:
		eventsTotal.WithLabelValues("rejected").Inc()
		return apperr.Wrap(apperr.KindBodyParse, errors.New("empty body"), "webhook body is empty")
	}

	if rc.secret != "" {
		if err := rc.verify(r.Header.Get(SignatureHeader), raw); err != nil {
			eventsTotal.WithLabelValues("rejected").Inc()
			return apperr.Wrap(apperr.KindUnauthorized, err, "invalid webhook signature")
		}
	}

	if !gjson.ValidBytes(raw) {
		eventsTotal.WithLabelValues("rejected").Inc()
		return apperr.BodyParse(errors.New("malformed event JSON"))
	}
	fields := gjson.GetManyBytes(raw, "id", "type")
	event := model.WebhookEvent{
		ID:         fields[0].String(),
		Type:       fields[1].String(),
		ReceivedAt: rc.clock().UTC(),
		Payload:    raw,
	}
	if event.ID == "" {
		eventsTotal.WithLabelValues("rejected").Inc()
		return apperr.Validation("event id is required")
	}

	err := rc.store.RecordEvent(r.Context(), event)
	switch {
	case errors.Is(err, storage.ErrConflict):
		eventsTotal.WithLabelValues("duplicate").Inc()
		rc.logger.Info("webhook event already recorded", "event_id", event.ID, "type", event.Type)
		return server.WriteJSON(w, http.StatusOK, receipt{Received: true, Duplicate: true})
	case err != nil:
		return fmt.Errorf("record webhook event %s: %w", event.ID, err)
	}

	eventsTotal.WithLabelValues("accepted").Inc()
	rc.logger.Info("webhook event recorded",
		"event_id", event.ID,
		"type", event.Type,
		"correlationId", server.CorrelationIDFrom(r.Context()),
	)
	return server.WriteJSON(w, http.StatusOK, receipt{Received: true})
}

// verify checks header against the exact payload bytes. Several v1 entries
// may be present while the provider rolls secrets.
func (rc *Receiver) verify(header string, payload []byte) error {
	return stripewebhook.ValidatePayloadWithTolerance(payload, header, rc.secret, rc.tolerance)
}
