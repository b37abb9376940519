package router

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stitchbook/api/internal/auth"
	"github.com/stitchbook/api/internal/config"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/handler"
	"github.com/stitchbook/api/internal/media"
	mw "github.com/stitchbook/api/internal/middleware"
	"github.com/stitchbook/api/internal/otp"
	"github.com/stitchbook/api/internal/service"
	"github.com/stitchbook/api/internal/wizard"
	"github.com/stitchbook/api/internal/ws"
)

// Deps is everything the routes need. main builds it once at startup.
type Deps struct {
	Config   *config.Config
	Queries  *database.Queries
	Pool     *pgxpool.Pool
	Hub      *ws.Hub
	Media    media.Store
	OTP      otp.Sender
	Sessions *wizard.Sessions
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and company scoping as needed.
func New(d Deps) chi.Router {
	cfg := d.Config
	queries := d.Queries

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	bridge := auth.NewBridge(queries, auth.NewPasswordProvider(queries), cfg.MasterPassword, cfg.LegacyPINSuffix)
	authHandler := handler.NewAuthHandler(bridge, queries, d.OTP, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/companies/{cid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, cfg.JWTSecret, w, r)
	})

	newStore := func(db database.DBTX) service.Store {
		return database.New(db)
	}
	orderService := service.NewOrderService(d.Pool, newStore, d.Hub)
	itemService := service.NewItemService(d.Pool, newStore, d.Hub)
	paymentService := service.NewPaymentService(d.Pool, newStore, d.Hub)

	companyHandler := handler.NewCompanyHandler(queries, d.Pool, func(db database.DBTX) handler.CompanyStore {
		return database.New(db)
	}, d.Media, cfg.JWTSecret)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		authHandler.RegisterProtectedRoutes(r)

		// Company creation (the user has no company yet)
		r.Route("/companies", func(r chi.Router) {
			companyHandler.RegisterRoutes(r)

			// Company-scoped routes
			r.Route("/{cid}", func(r chi.Router) {
				r.Use(mw.RequireCompany)

				companyHandler.RegisterCompanyRoutes(r)

				// Customers
				customerHandler := handler.NewCustomerHandler(queries)
				r.Route("/customers", customerHandler.RegisterRoutes)

				// Orders
				orderHandler := handler.NewOrderHandler(orderService, queries)
				itemHandler := handler.NewItemHandler(itemService)
				paymentHandler := handler.NewPaymentHandler(paymentService)
				invoiceHandler := handler.NewInvoiceHandler(queries, d.Media)
				r.Route("/orders", func(r chi.Router) {
					orderHandler.RegisterRoutes(r)

					// Nested order routes
					r.Route("/{id}/items", itemHandler.RegisterRoutes)
					r.Route("/{id}/payments", paymentHandler.RegisterRoutes)
					r.Route("/{id}/invoice", invoiceHandler.RegisterRoutes)
				})

				// Media uploads
				mediaHandler := handler.NewMediaHandler(d.Media)
				r.Route("/media", mediaHandler.RegisterRoutes)

				// Staff and reports
				userHandler := handler.NewUserHandler(queries, bridge)
				r.Route("/staff", userHandler.RegisterRoutes)
				reportsHandler := handler.NewReportsHandler(queries)
				r.Route("/reports", reportsHandler.RegisterRoutes)

				// Order wizard
				wizardHandler := handler.NewWizardHandler(d.Sessions, orderService, queries, d.Media)
				r.Route("/wizard", wizardHandler.RegisterRoutes)
			})
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
