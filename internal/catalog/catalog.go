// Package catalog serves the document route groups of the store API. Each
// group exposes the same CRUD surface over one storage collection.
package catalog

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tiendaonline/tienda-api/internal/apperr"
	"github.com/tiendaonline/tienda-api/internal/model"
	"github.com/tiendaonline/tienda-api/internal/server"
	"github.com/tiendaonline/tienda-api/internal/storage"
)

const maxListLimit = 500

// Binding ties a route group prefix to the collection it serves.
type Binding struct {
	Prefix     string
	Collection string
}

// Bindings lists the document groups in mount order.
var Bindings = []Binding{
	{Prefix: server.PrefixUsers, Collection: "users"},
	{Prefix: server.PrefixProducts, Collection: "products"},
	{Prefix: server.PrefixOrders, Collection: "orders"},
	{Prefix: server.PrefixPayment, Collection: "payments"},
	{Prefix: server.PrefixCarrito, Collection: "carritos"},
	{Prefix: server.PrefixRestock, Collection: "restocks"},
	{Prefix: server.PrefixStock, Collection: "stock"},
	{Prefix: server.PrefixPedidosProveedor, Collection: "pedidos_proveedor"},
	{Prefix: server.PrefixCategorias, Collection: "categorias"},
}

// Mounts builds one group per binding.
func Mounts(store storage.DocumentStore, logger *slog.Logger) []server.Mount {
	mounts := make([]server.Mount, 0, len(Bindings))
	for _, b := range Bindings {
		mounts = append(mounts, server.Mount{
			Prefix: b.Prefix,
			Group:  New(b.Collection, store, logger).Routes(),
		})
	}
	return mounts
}

// Group is the CRUD handler set for one collection.
type Group struct {
	collection string
	store      storage.DocumentStore
	logger     *slog.Logger
}

// New creates a Group over collection.
func New(collection string, store storage.DocumentStore, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		collection: collection,
		store:      store,
		logger:     logger.With("collection", collection),
	}
}

// Routes returns the group's sub-router.
func (g *Group) Routes() chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/", server.Adapt(g.list))
	r.Method(http.MethodPost, "/", server.Adapt(g.create))
	r.Method(http.MethodGet, "/{id}", server.Adapt(g.get))
	r.Method(http.MethodPut, "/{id}", server.Adapt(g.update))
	r.Method(http.MethodPatch, "/{id}", server.Adapt(g.update))
	r.Method(http.MethodDelete, "/{id}", server.Adapt(g.remove))
	return r
}

func (g *Group) list(w http.ResponseWriter, r *http.Request) error {
	opts, err := listOptions(r)
	if err != nil {
		return err
	}
	docs, err := g.store.List(r.Context(), g.collection, opts)
	if err != nil {
		return fmt.Errorf("list %s: %w", g.collection, err)
	}
	return server.WriteJSON(w, http.StatusOK, docs)
}

func (g *Group) get(w http.ResponseWriter, r *http.Request) error {
	doc, err := g.store.Get(r.Context(), g.collection, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, doc)
}

func (g *Group) create(w http.ResponseWriter, r *http.Request) error {
	doc, err := documentFrom(r)
	if err != nil {
		return err
	}
	if id, ok := doc[model.IDField]; ok {
		if _, isString := id.(string); !isString {
			return apperr.Validation("_id must be a string")
		}
	}
	created, err := g.store.Create(r.Context(), g.collection, doc)
	if err != nil {
		return err
	}
	g.logger.Debug("document created", "id", created.ID(), "correlationId", server.CorrelationIDFrom(r.Context()))
	return server.WriteJSON(w, http.StatusCreated, created)
}

func (g *Group) update(w http.ResponseWriter, r *http.Request) error {
	fields, err := documentFrom(r)
	if err != nil {
		return err
	}
	updated, err := g.store.Update(r.Context(), g.collection, chi.URLParam(r, "id"), fields)
	if err != nil {
		return err
	}
	return server.WriteJSON(w, http.StatusOK, updated)
}

func (g *Group) remove(w http.ResponseWriter, r *http.Request) error {
	if err := g.store.Delete(r.Context(), g.collection, chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// documentFrom requires the structured body to be a JSON object.
func documentFrom(r *http.Request) (model.Document, error) {
	body := server.BodyFrom(r)
	if !body.IsObject() {
		return nil, apperr.Validation("body must be a JSON object")
	}
	var doc model.Document
	if err := body.Decode(&doc); err != nil {
		return nil, apperr.BodyParse(err)
	}
	if doc == nil {
		doc = model.Document{}
	}
	return doc, nil
}

func listOptions(r *http.Request) (model.ListOptions, error) {
	var opts model.ListOptions
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return opts, apperr.Validation("limit must be a non-negative integer")
		}
		opts.Limit = min(n, maxListLimit)
	}
	if raw := q.Get("skip"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return opts, apperr.Validation("skip must be a non-negative integer")
		}
		opts.Skip = n
	}
	return opts, nil
}
