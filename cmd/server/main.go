package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"realtime/internal/events"
	"realtime/internal/metrics"
	"realtime/internal/registry"
	"realtime/internal/routers"
	"realtime/internal/services"
	"realtime/internal/session"
)

var (
	defaultPort      = "8080"
	defaultRedisAddr = "redis:6379"
	defaultOrigins   = "*"

	listenAndServe = http.ListenAndServe
	exitFunc       = defaultExit
	exit           = os.Exit
)

func defaultExit(err error) {
	log.Printf("realtime-svc exited: %v", err)
	exit(1)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(_ context.Context) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	reg := registry.New(logger)
	hub := session.NewHub()
	usage := session.NewUsageTracker()
	router := events.NewRouter(logger, reg, hub, usage)

	bridge := services.NewBridge(logger, envOr("REDIS_ADDR", defaultRedisAddr), router)
	bridge.Start()
	defer bridge.Stop()

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware(),
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(envOr("ALLOWED_ORIGINS", defaultOrigins), ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", routers.New(logger, router))
	r.Get("/healthz", healthHandler)

	addr := ":" + envOr("PORT", defaultPort)
	log.Printf("realtime-svc listening on %s", addr)
	return listenAndServe(addr, r)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}
