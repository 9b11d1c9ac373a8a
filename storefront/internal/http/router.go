package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	Verifier       TokenVerifier
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig, carts *CartHandler, checkouts *CheckoutHandler, purchases *PurchaseHandler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware)
		r.Use(AuthMiddleware(cfg.Verifier, cfg.Logger))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkouts.GetState)
			r.Post("/", checkouts.BeginCheckout)
			r.With(RequireUser).Post("/return", checkouts.Return)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.With(RequireUser).Get("/", purchases.ListPurchases)
			r.Get("/eligibility", purchases.Eligibility)
		})

		r.With(RequireAdmin).Get("/admin/purchases", purchases.ListRecent)
	})

	return otelhttp.NewHandler(r, "storefront")
}
