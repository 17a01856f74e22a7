// Command gateway serves the AICENGHUB chat gateway: the guarded chat
// endpoint plus the documented read-only catalog API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sena168/aicenghub/internal/chat"
	"github.com/sena168/aicenghub/internal/config"
	"github.com/sena168/aicenghub/internal/database"
	"github.com/sena168/aicenghub/internal/http/handlers"
	"github.com/sena168/aicenghub/internal/http/mw"
	"github.com/sena168/aicenghub/internal/http/routes"
	"github.com/sena168/aicenghub/internal/llm"
	"github.com/sena168/aicenghub/internal/logging"
	"github.com/sena168/aicenghub/internal/ratelimit"
	"github.com/sena168/aicenghub/internal/repository"
	"github.com/sena168/aicenghub/internal/tools"
	"github.com/sena168/aicenghub/internal/version"
)

func main() {
	logger := logging.SetDefault()

	info := version.Get()
	logger.Info("starting aicenghub gateway",
		"version", info.Version,
		"commit", info.Commit,
		"go_version", info.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The store is optional: without it the gateway still chats, it
	// just skips candidate bookkeeping.
	var db *sql.DB
	var links chat.LinkStore
	var queue chat.JobQueue
	var linkLister handlers.LinkLister
	if cfg.DatabaseURL != "" {
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("store unavailable, degrading", "error", err)
		} else {
			defer func() { _ = db.Close() }()
			if err := repository.EnsureSchema(db, logger); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
			repos := repository.New(db)
			links = repos.Links
			queue = repos.Queue
			linkLister = repos.Links
		}
	} else {
		logger.Warn("no database configured, running store-less")
	}

	toolsClient := tools.New(cfg.ToolsBaseURL, cfg.ToolsAPIKey, cfg.ToolsTimeout)
	model := llm.New(cfg.HTTPReferer, cfg.AppTitle, logger)
	chatService := chat.NewService(cfg, logger, ratelimit.New(), toolsClient, model, links, queue)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.SecurityHeaders)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", "X-Session-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Outer per-IP limit; the pipeline applies its own finer buckets.
	router.Use(httprate.LimitByIP(100, time.Minute))

	humaConfig := huma.DefaultConfig("AICENGHUB API", version.Version)
	humaConfig.Info.Description = "Guarded AI-chat gateway over the AICENGHUB tool catalog."
	api := humachi.New(router, humaConfig)

	hiddenConfig := huma.DefaultConfig("AICENGHUB API", version.Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	linksHandler := handlers.NewLinksHandler(linkLister)
	var pinger handlers.DBPinger
	if db != nil {
		pinger = db
	}
	readyz := handlers.NewReadyzHandler(pinger)

	h := &routes.Handlers{
		Links:  linksHandler.ListLinks,
		Livez:  handlers.Livez,
		Readyz: readyz.Readyz,
	}
	routes.Register(api, h)
	routes.RegisterProbes(hiddenAPI, h)

	// Chat stays a raw handler: it controls its own status codes,
	// headers, and body-size gate.
	router.Handle("/juleha-chat", chatService)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("listening", "port", cfg.Port, "routes", len(cfg.Routes), "verify_links", cfg.VerifyLinks)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
