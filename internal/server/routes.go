package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// WebhookPrefix is the only prefix whose body is kept as raw bytes.
const WebhookPrefix = "/api/webhook"

// Route group prefixes, in mount order.
const (
	PrefixUsers            = "/api/users"
	PrefixProducts         = "/api/products"
	PrefixOrders           = "/api/orders"
	PrefixPayment          = "/api/payment"
	PrefixWebhook          = WebhookPrefix
	PrefixCarrito          = "/api/carrito"
	PrefixRestock          = "/api/restock"
	PrefixStock            = "/api/stock"
	PrefixPedidosProveedor = "/api/pedidos-proveedor"
	PrefixCategorias       = "/api/categorias"
)

// Prefixes lists every route group prefix the service mounts.
var Prefixes = []string{
	PrefixUsers,
	PrefixProducts,
	PrefixOrders,
	PrefixPayment,
	PrefixWebhook,
	PrefixCarrito,
	PrefixRestock,
	PrefixStock,
	PrefixPedidosProveedor,
	PrefixCategorias,
}

// Mount binds a path prefix to the handler of a route group.
type Mount struct {
	Prefix string
	Group  http.Handler
}

// validateMounts rejects tables chi would panic on or silently shadow.
func validateMounts(mounts []Mount) error {
	seen := make(map[string]struct{}, len(mounts))
	var errs []error
	for i, m := range mounts {
		switch {
		case !strings.HasPrefix(m.Prefix, "/"):
			errs = append(errs, fmt.Errorf("mount %d: prefix %q must start with /", i, m.Prefix))
		case m.Prefix == "/" || strings.HasSuffix(m.Prefix, "/"):
			errs = append(errs, fmt.Errorf("mount %d: prefix %q must not end with /", i, m.Prefix))
		case m.Group == nil:
			errs = append(errs, fmt.Errorf("mount %d: prefix %s has no group", i, m.Prefix))
		}
		if _, dup := seen[m.Prefix]; dup {
			errs = append(errs, fmt.Errorf("mount %d: duplicate prefix %s", i, m.Prefix))
		}
		seen[m.Prefix] = struct{}{}
	}
	return errors.Join(errs...)
}
