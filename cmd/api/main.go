// cmd/api/main.go
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"timeline-editor/internal/compositor"
	"timeline-editor/internal/config"
	"timeline-editor/internal/handler"
	"timeline-editor/internal/logging"
	"timeline-editor/internal/media"
	"timeline-editor/internal/playback"
	"timeline-editor/internal/service"
	"timeline-editor/internal/session"
	"timeline-editor/internal/storage"
	"timeline-editor/internal/worker"
)

func main() {
	// Load .env in dev only; production injects env vars through infra (K8s secrets, etc.)
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}
	log := logging.New(cfg.LogLevel, os.Stdout)

	// ── Database (optional: without it sessions are in-memory only) ──────────
	var projects *service.ProjectService
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to open DB")
		}
		defer db.Close()

		// Connection pool: prevents overwhelming DB under concurrent load
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Verify connection at startup, fail fast rather than accepting traffic
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			pingCancel()
			log.WithError(err).Fatal("database ping failed")
		}
		pingCancel()

		projects = &service.ProjectService{DB: db}
		if err := projects.EnsureSchema(context.Background()); err != nil {
			log.WithError(err).Fatal("schema setup failed")
		}

		var dbName string
		db.QueryRow("SELECT current_database()").Scan(&dbName)
		log.WithField("database", dbName).Info("connected to database")
	} else {
		log.Warn("DATABASE_URL not set, save/open disabled")
	}

	// ── Storage (local uploads dir, plus S3 when STORAGE_TYPE=s3) ─────────────
	local, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		log.WithError(err).Fatal("local storage")
	}
	src := &storage.Mux{Local: local, HTTP: storage.NewHTTPStorage(30 * time.Second)}
	if cfg.StorageType == "s3" {
		s3, err := storage.NewS3Storage(cfg.AWSRegion)
		if err != nil {
			log.WithError(err).Fatal("s3 storage")
		}
		src.S3 = s3
		log.WithField("region", cfg.AWSRegion).Info("using S3 storage")
	}
	log.WithField("dir", local.Root).Info("using local storage")

	// ── Media & rendering ─────────────────────────────────────────────────────
	provider := media.NewProvider(src, media.FFmpeg{Path: cfg.FFmpegPath},
		media.WithProviderLogger(log.WithField("component", "media")))
	defer provider.Close()
	comp := compositor.New(provider, compositor.WithLogger(log.WithField("component", "compositor")))

	// ── Background jobs ───────────────────────────────────────────────────────
	dispatcher := worker.NewDispatcher(cfg.WorkerCount, cfg.WorkerQueueSize, log.WithField("component", "worker"))
	dispatcher.Run()

	// ── Sessions & Handlers ───────────────────────────────────────────────────
	hub := handler.NewHub(log, func() []session.Option {
		return []session.Option{
			session.WithCompositor(comp),
			session.WithLogger(log),
			session.WithSyncTolerance(cfg.SyncToleranceMs),
			session.WithClockOptions(playback.WithTick(cfg.PlaybackTick)),
		}
	})
	editorHandler := &handler.EditorHandler{
		Hub:      hub,
		Projects: projects,
		Jobs:     dispatcher,
		Source:   src,
		Prober:   media.FFProbe{Path: cfg.FFprobePath},
		Cache:    provider,
		Log:      log,
	}

	// ── Router ────────────────────────────────────────────────────────────────
	r := mux.NewRouter()

	// Health check: required by load balancers and Kubernetes liveness probes
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if projects != nil {
			if err := projects.DB.PingContext(r.Context()); err != nil {
				http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// API routes are versioned so parent product can call /api/v1/* without conflicts
	editorHandler.Routes(r.PathPrefix("/api/v1").Subrouter())

	// ── CORS (read from env, not hardcoded) ──────────────────────────────────
	// Dev:        ALLOWED_ORIGINS=http://localhost:5173
	// Production: ALLOWED_ORIGINS=https://yourproduct.com,https://admin.yourproduct.com
	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		// X-User-ID: will be injected by API gateway in production
		handlers.AllowedHeaders([]string{"Content-Type", "X-User-ID", "X-Request-ID", "Authorization"}),
		handlers.ExposedHeaders([]string{"X-Request-ID", "X-Frame-Time", "X-Skipped-Layers"}),
	)

	// A panicking handler answers 500 instead of killing the connection.
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(log), handlers.PrintRecoveryStack(true))

	// ── HTTP Server with timeouts ──────────────────────────────────────────────
	// Without timeouts, a slow client can hold a connection open forever.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      cors(handler.RequestLogger(log)(recovery(r))),
		ReadTimeout:  10 * time.Second, // Time to read the full request
		WriteTimeout: 30 * time.Second, // Full-resolution PNG frames can take a while
		IdleTimeout:  60 * time.Second, // Keep-alive connection timeout
	}

	// ── Graceful Shutdown ──────────────────────────────────────────────────────
	// On SIGTERM we finish in-flight requests, drain queued imports, then stop
	// every open session.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("port", cfg.Port).Info("editor service running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-quit
	log.Info("shutdown signal received, draining requests")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("import jobs cancelled")
	}
	hub.Close()
	log.Info("server stopped cleanly")
}
