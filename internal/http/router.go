package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	Products *ProductHandler
	Reviews  *ReviewHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Payments *PaymentHandler
	Orders   *OrdersHandler
}

type RouterConfig struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	// Ready reports dependency health for /health; nil means always ready.
	Ready func(r *http.Request) error
}

func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(req); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.ListProducts)
			r.Get("/{id}", h.Products.GetProduct)
			r.Get("/{id}/reviews", h.Reviews.ListReviews)
			r.Get("/{id}/review-eligibility", h.Reviews.Eligibility)
			r.With(RequireAuth).Post("/{id}/reviews", h.Reviews.SubmitReview)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}", h.Cart.RemoveItem)
		})

		r.Post("/checkout", h.Checkout.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.With(RequireAuth).Get("/", h.Orders.ListOrders)
			r.Get("/{id}", h.Orders.GetOrder)
			r.Post("/{id}/payment", h.Payments.Initialize)
			r.With(RequireAuth).Post("/{id}/cancellation", h.Orders.RequestCancellation)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/verify", h.Payments.Verify)
			r.Post("/sandbox/{gateway_order_id}/pay", h.Payments.SandboxPay)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/orders", h.Orders.AdminListOrders)
			r.Post("/orders/{id}/status", h.Orders.AdvanceStatus)
			r.Post("/orders/{id}/cancellation", h.Orders.ProcessCancellation)
			r.Post("/reviews", h.Reviews.ImportReview)
			r.Post("/reviews/{id}/visibility", h.Reviews.SetVisibility)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
