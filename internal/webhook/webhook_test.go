package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"

	"github.com/tiendaonline/tienda-api/internal/config"
	"github.com/tiendaonline/tienda-api/internal/server"
	"github.com/tiendaonline/tienda-api/internal/storage"
)

const testSecret = "whsec_test"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPipeline(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	rc := New(storage.NewMemory(), logger, opts...)
	h, err := server.New(server.Options{
		Config: config.Config{DevOrigin: "http://localhost:5173", BodyLimit: 1 << 16},
		Mounts: []server.Mount{{Prefix: server.WebhookPrefix, Group: rc.Routes()}},
		Logger: logger,
	})
	require.NoError(t, err)
	return h
}

func post(h http.Handler, body, contentType, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, server.WebhookPrefix, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// signature signs body the way the provider does. The tolerance window is
// checked against the wall clock, so ts should be relative to time.Now.
func signature(secret string, ts time.Time, body string) string {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

func envelopeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env["error"]
}

func TestReceive_NoSecret(t *testing.T) {
	h := newPipeline(t)
	body := `{"id":"evt_1","type":"payment_intent.succeeded"}`

	rec := post(h, body, "application/json", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	rec = post(h, body, "application/json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"duplicate":true}`, rec.Body.String())
}

func TestReceive_Signature(t *testing.T) {
	h := newPipeline(t, WithSecret(testSecret), WithTolerance(time.Minute))
	body := `{"id":"evt_2","type":"charge.refunded","data":{"object":{"amount":1200}}}`
	now := time.Now()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "nonsense", http.StatusUnauthorized},
		{"wrong secret", signature("whsec_other", now, body), http.StatusUnauthorized},
		{"stale", signature(testSecret, now.Add(-2*time.Minute), body), http.StatusUnauthorized},
		{"rolled secret", "v1=00ff," + signature(testSecret, now, body), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(h, body, "application/json", tc.header)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.want == http.StatusUnauthorized {
				assert.Equal(t, "invalid webhook signature", envelopeError(t, rec))
			}
		})
	}
}

func TestReceive_SignatureCoversExactBytes(t *testing.T) {
	h := newPipeline(t, WithSecret(testSecret))
	body := "{\n  \"id\": \"evt_3\",\n  \"type\": \"x\"\n}"
	header := signature(testSecret, time.Now(), body)

	rec := post(h, body, "application/json", header)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// re-encoding the payload breaks the signature
	rec = post(h, `{"id":"evt_3","type":"x"}`, "application/json", header)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReceive_Rejections(t *testing.T) {
	h := newPipeline(t)

	rec := post(h, `id=evt_4`, "application/x-www-form-urlencoded", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "webhook body must be application/json", envelopeError(t, rec))

	rec = post(h, ``, "application/json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "webhook body is empty", envelopeError(t, rec))

	rec = post(h, `{"type":"x"}`, "application/json", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "event id is required", envelopeError(t, rec))

	rec = post(h, `{"id":`, "application/json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify(t *testing.T) {
	rc := New(storage.NewMemory(), nil, WithSecret(testSecret), WithTolerance(time.Minute))
	payload := []byte(`{"id":"evt"}`)
	now := time.Now()

	require.NoError(t, rc.verify(signature(testSecret, now, string(payload)), payload))
	assert.ErrorIs(t, rc.verify("", payload), stripewebhook.ErrNotSigned)
	assert.ErrorIs(t, rc.verify("t=1,v1", payload), stripewebhook.ErrInvalidHeader)
	assert.ErrorIs(t, rc.verify("t=1", payload), stripewebhook.ErrNoValidSignature)
	assert.ErrorIs(t, rc.verify(signature(testSecret, now.Add(-10*time.Minute), string(payload)), payload), stripewebhook.ErrTooOld)
	assert.ErrorIs(t, rc.verify(signature(testSecret, now, "other"), payload), stripewebhook.ErrNoValidSignature)
}
