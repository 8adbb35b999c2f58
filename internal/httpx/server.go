package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(m *metrics.ServerMetrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(middleware.Timeout(15 * time.Second))
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// API groups the handlers mounted under /api.
type API struct {
	JWTSecret string
	Checkout  *CheckoutHandler
	Orders    *OrdersHandler
	Cart      *CartHandler
	Catalog   *CatalogHandler
	Reports   *ReportsHandler
}

func (a *API) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		a.Orders.RegisterPublic(r)
		a.Catalog.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(a.JWTSecret))
			a.Checkout.Register(r)
			a.Orders.Register(r)
			a.Cart.Register(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRoles(auth.StaffRoles...))
				a.Orders.RegisterStaff(r)
				r.With(auth.RequireRoles(auth.RoleAdmin, auth.RoleSales)).Group(a.Reports.Register)
			})
		})
	})
}
