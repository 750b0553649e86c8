package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetdesk/pkg/config"
	"fleetdesk/pkg/contracts"
	"fleetdesk/pkg/middleware"
)

// Application owns the HTTP server, the router and the shared middleware
// chain. Handlers register their own routes through contracts.Handler.
type Application struct {
	cfg         *config.Config
	router      *httprouter.Router
	server      *http.Server
	idemStore   *middleware.InMemoryIdempotencyStore
	rateLimiter *middleware.KeyRateLimiter
}

func NewApplication(cfg *config.Config, handlers ...contracts.Handler) *Application {
	router := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(router)
	}
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	idemStore := middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL)
	rateLimiter := middleware.NewKeyRateLimiter(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		middleware.DefaultKeyExtractor,
		cfg.Log,
	)

	chain := applyMiddleware(router,
		middleware.Idempotency(idemStore, "Idempotency-Key"),
		middleware.RequestTimeout(cfg.RequestTimeout),
		middleware.RateLimit(rateLimiter),
		middleware.Authentication(cfg.JWTSecret, cfg.Log),
		middleware.ContentTypeValidation(cfg.Log),
		middleware.MaxRequestSize(int64(cfg.MaxRequestSize)),
		middleware.RequestLogging(cfg.Log),
		middleware.Recovery(cfg.Log),
	)

	return &Application{
		cfg:         cfg,
		router:      router,
		idemStore:   idemStore,
		rateLimiter: rateLimiter,
		server: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      chain,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// applyMiddleware wraps the handler so the first middleware in the list is
// the innermost.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (a *Application) Run() {
	go func() {
		a.cfg.Log.Info("server starting", "port", a.cfg.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.cfg.Log.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("graceful shutdown failed", "error", err)
	}

	a.idemStore.Stop()
	a.rateLimiter.Stop()
	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("server stopped")
}
