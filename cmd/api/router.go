package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-invoice/internal/app"
	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/invoice/pdf"
	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/ratelimit"
	"github.com/noah-isme/backend-invoice/internal/security"
)

func newRouter(deps *app.Dependencies, o *app.Observability) http.Handler {
	cfg := deps.Config
	logger := o.Logger

	authHandler := &auth.Handler{Service: deps.Auth}
	authMiddleware := auth.Middleware{Service: deps.Auth}
	invoiceHandler := &invoice.Handler{Service: deps.Invoices, Renderer: pdf.Renderer{Issuer: "Invoice"}}
	healthHandler := health.Handler{Checker: deps, StoreTimeout: cfg.StoreTimeout}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	authLimit := ratelimit.Handler{Limiter: deps.Limiter, Key: common.ClientIP, Logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if o.TracingEnabled {
		r.Use(obs.HTTPTracing("invoice-api"))
	}
	if o.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: o.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, HSTSMaxAge: cfg.HSTSMaxAge, NoStorePrefixes: []string{"/api/"}}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.TokenHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestSize(cfg.RequestMaxBytes))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Server is running!"))
	})
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if o.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.EnablePprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.Get("/check-admin-exists", authHandler.CheckAdminExists)
			a.With(authLimit.Middleware).Post("/register", authHandler.Register)
			a.With(authLimit.Middleware).Post("/login", authHandler.Login)
			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
				protected.Get("/check-admin", authHandler.CheckAdmin)
				protected.With(authLimit.Middleware).Post("/change-password", authHandler.ChangePassword)
			})
		})

		v.Route("/invoices", func(inv chi.Router) {
			inv.Use(authMiddleware.RequireAuth)
			inv.Get("/", invoiceHandler.List)
			inv.With(idem.Middleware).Post("/", invoiceHandler.Create)
			inv.Post("/preview", invoiceHandler.Preview)
			inv.Get("/{id}", invoiceHandler.Get)
			inv.Put("/{id}", invoiceHandler.Update)
			inv.Delete("/{id}", invoiceHandler.Delete)
			inv.Get("/{id}/pdf", invoiceHandler.PDF)
		})
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return http.StripPrefix("/debug/pprof", mux)
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
