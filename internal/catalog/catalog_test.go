package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendaonline/tienda-api/internal/config"
	"github.com/tiendaonline/tienda-api/internal/model"
	"github.com/tiendaonline/tienda-api/internal/server"
	"github.com/tiendaonline/tienda-api/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := server.New(server.Options{
		Config: config.Config{DevOrigin: "http://localhost:5173", BodyLimit: 1 << 16},
		Mounts: Mounts(store, logger),
		Logger: logger,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, store
}

func send(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBindingsCoverDocumentPrefixes(t *testing.T) {
	seen := map[string]bool{}
	for _, b := range Bindings {
		seen[b.Prefix] = true
	}
	for _, p := range server.Prefixes {
		if p == server.WebhookPrefix {
			assert.False(t, seen[p], "webhook must not be a document group")
			continue
		}
		assert.True(t, seen[p], "missing binding for %s", p)
	}
}

func TestProductsCRUD(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + server.PrefixProducts

	resp := send(t, http.MethodPost, base, `{"nombre":"Silla","precio":45.5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.Document](t, resp)
	id := created.ID()
	require.NotEmpty(t, id)
	assert.Equal(t, "Silla", created["nombre"])

	resp = send(t, http.MethodGet, base+"/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 45.5, decode[model.Document](t, resp)["precio"])

	resp = send(t, http.MethodPatch, base+"/"+id, `{"precio":40,"_id":"ignored"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[model.Document](t, resp)
	assert.Equal(t, float64(40), updated["precio"])
	assert.Equal(t, id, updated.ID())

	resp = send(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.Document](t, resp), 1)

	resp = send(t, http.MethodDelete, base+"/"+id, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = send(t, http.MethodGet, base+"/"+id, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	env := decode[map[string]string](t, resp)
	assert.Equal(t, "Algo salió mal", env["mensaje"])
	assert.Equal(t, "not found", env["error"])
}

func TestCreateRejectsNonObject(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := send(t, http.MethodPost, ts.URL+server.PrefixCategorias, `[{"nombre":"Hogar"}]`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "body must be a JSON object", decode[map[string]string](t, resp)["error"])

	resp = send(t, http.MethodPost, ts.URL+server.PrefixCategorias, `{"_id":12}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateDuplicateID(t *testing.T) {
	ts, _ := newTestServer(t)
	url := ts.URL + server.PrefixUsers

	resp := send(t, http.MethodPost, url, `{"_id":"ana","email":"ana@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = send(t, http.MethodPost, url, `{"_id":"ana"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListPaging(t *testing.T) {
	ts, store := newTestServer(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := store.Create(context.Background(), "stock", model.Document{"sku": name})
		require.NoError(t, err)
	}

	resp := send(t, http.MethodGet, ts.URL+server.PrefixStock+"?skip=1&limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docs := decode[[]model.Document](t, resp)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0]["sku"])
	assert.Equal(t, "c", docs[1]["sku"])

	resp = send(t, http.MethodGet, ts.URL+server.PrefixStock+"?limit=-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestUnknownSubpath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := send(t, http.MethodGet, ts.URL+server.PrefixOrders+"/1/items", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = send(t, http.MethodPost, ts.URL+server.PrefixOrders+"/1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
