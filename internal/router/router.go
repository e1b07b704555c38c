package router

import (
	"net/http"

	"github.com/antonminaichev/agroconnect/internal/crop"
	"github.com/antonminaichev/agroconnect/internal/logger"
	"github.com/antonminaichev/agroconnect/internal/middleware"
	"github.com/antonminaichev/agroconnect/internal/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	usr "github.com/antonminaichev/agroconnect/internal/user"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(
	userH *usr.Handler,
	cropH *crop.Handler,
	orderH *order.Handler,
	auth *middleware.Authenticator,
	corsOrigins []string,
) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.WithLogging)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization", logger.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.GzipHandler)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Mount("/api/user", userH.Routes())
	r.Mount("/api/crops", cropH.Routes(auth.JWTMiddleware, middleware.RequireRole(user.RoleCustomer)))

	// authenticates from the query string itself
	r.Get("/api/farmer/orders/stream", orderH.Stream)

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(user.RoleCustomer))
			r.Mount("/api/orders", orderH.CustomerRoutes())
			r.Get("/api/customer/dashboard", orderH.CustomerDashboard)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(user.RoleFarmer))
			r.Post("/api/farmer/crops", cropH.Create)
			r.Get("/api/farmer/crops", cropH.ListMine)
			r.Patch("/api/farmer/crops/{id}", cropH.Update)
			r.Delete("/api/farmer/crops/{id}", cropH.Delete)
			r.Get("/api/farmer/dashboard", orderH.FarmerDashboard)
			r.Mount("/api/farmer/orders", orderH.FarmerRoutes())
		})
	})

	return r
}
