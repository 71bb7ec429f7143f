package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/tuuziane/marketplace/internal/auth"
	"github.com/tuuziane/marketplace/internal/config"
	"github.com/tuuziane/marketplace/internal/handler"
	"github.com/tuuziane/marketplace/internal/notify"
	"github.com/tuuziane/marketplace/internal/order"
	"github.com/tuuziane/marketplace/internal/product"
	"github.com/tuuziane/marketplace/internal/rider"
)

// NewRouter wires repositories, services, and handlers onto a chi mux.
func NewRouter(pool *pgxpool.Pool, catalogDB *sqlx.DB, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	productRepo := product.NewRepository(catalogDB)
	riderRepo := rider.NewRepository(pool)
	riderSvc := rider.NewService(riderRepo)
	deviceRepo := notify.NewDeviceRepository(pool)
	notifier := notify.NewPushNotifier(deviceRepo, &http.Client{Timeout: cfg.Push.Timeout}, cfg.Push.Endpoint)

	orderRepo := order.NewRepository(pool)
	orderSvc := order.NewService(orderRepo, productRepo, riderSvc, notifier)

	orderHandler := handler.NewOrderHandler(orderSvc)
	riderHandler := handler.NewRiderHandler(riderSvc, deviceRepo)
	productHandler := handler.NewProductHandler(productRepo)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.App.JWTSecret))
		orderHandler.RegisterRoutes(r)
		riderHandler.RegisterRoutes(r)
		productHandler.RegisterRoutes(r)
	})

	return r
}
