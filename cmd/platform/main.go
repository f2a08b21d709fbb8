package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/claimwise/platform/internal/adapters/carrier"
	"github.com/claimwise/platform/internal/adapters/carrier/legacycore"
	"github.com/claimwise/platform/internal/audit"
	claimapi "github.com/claimwise/platform/internal/claim/api"
	claiminfra "github.com/claimwise/platform/internal/claim/infrastructure"
	"github.com/claimwise/platform/internal/insurer"
	"github.com/claimwise/platform/internal/policy"
	"github.com/claimwise/platform/internal/recommendation"
	"github.com/claimwise/platform/internal/shared/auth"
	"github.com/claimwise/platform/internal/shared/config"
	"github.com/claimwise/platform/internal/shared/database"
	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/metrics"
	secmiddleware "github.com/claimwise/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running in limited mode without database...")
	} else {
		app.DB = db
		defer db.Close()

		// Run migrations
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize event bus with EventStoreDB (optional - skip if not available)
	bus, err := events.NewBus(ctx, cfg.EventStore)
	if err != nil {
		fmt.Printf("Warning: EventStoreDB not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("EventStoreDB event bus initialized")
	}

	rateLimiter := secmiddleware.NewIPRateLimiter(20, 40)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(rateLimiter.Middleware)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		if app.DB != nil {
			// Policy module
			policyRepo := policy.NewRepository(app.DB.Pool)
			normalizer := policy.NewNormalizer(cfg.Engine.ExtractionConfidenceThreshold)
			policyHandler := policy.NewHandler(policyRepo, normalizer, app.Bus)
			r.Mount("/policies", policyHandler.Routes())

			// Claim module
			claimRepo := claiminfra.NewPostgresRepository(app.DB.Pool)
			claimHandler := claimapi.NewHandler(claimRepo, app.Bus)
			r.Mount("/claims", claimHandler.Routes())

			// Recommendation module
			engine := recommendation.NewEngine(cfg.Engine.MinMatchScore, cfg.Engine.MaxPlanClaims)
			recHandler := recommendation.NewHandler(policyRepo, claimRepo, engine, app.Bus)
			r.Mount("/recommendations", recHandler.Routes())

			// Insurer registry
			insurerRepo := insurer.NewRepository(app.DB.Pool)
			insurerHandler := insurer.NewHandler(insurerRepo, app.Bus)
			r.Mount("/insurers", insurerHandler.Routes())

			// Audit module - append-only EventStoreDB stream when the bus
			// is up, postgres table otherwise
			var auditRepo audit.AuditRepository
			if app.Bus != nil {
				auditRepo = audit.NewEventStoreRepository(app.Bus.Client())
			} else {
				auditRepo = audit.NewRepository(app.DB.Pool)
			}
			if err := auditRepo.Initialize(ctx); err != nil {
				fmt.Printf("Warning: Audit initialization failed: %v\n", err)
			}
			auditHandler := audit.NewHandler(auditRepo)
			r.Mount("/audit", auditHandler.Routes())

			if app.Bus != nil {
				auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
				if err := auditSubscriber.Start(ctx); err != nil {
					fmt.Printf("Warning: Audit subscriber failed to start: %v\n", err)
				} else {
					fmt.Println("Audit subscriber started")
				}
			}

			// Insurer claim status sync
			if cfg.InsurerSync.Enabled {
				startInsurerSync(ctx, cfg.InsurerSync, insurerRepo, claimRepo, app.Bus)
			}
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("ClaimWise Coverage & Claims Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("EventStore:     %s:%d\n", cfg.EventStore.Host, cfg.EventStore.Port)
	fmt.Printf("Insurer sync:   %v\n", cfg.InsurerSync.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

// startInsurerSync starts a legacy core adapter per registered carrier
// and feeds its status updates through the claim lifecycle
func startInsurerSync(ctx context.Context, cfg config.InsurerSyncConfig, insurers *insurer.Repository, claims *claiminfra.PostgresRepository, bus *events.Bus) {
	syncable, err := insurers.ListSyncable(ctx)
	if err != nil {
		fmt.Printf("Warning: Failed to list syncable insurers: %v\n", err)
		return
	}

	syncer := carrier.NewSyncer(claims, bus)
	started := 0

	for _, ins := range syncable {
		if ins.Adapter != "legacycore" {
			fmt.Printf("Warning: Insurer %s configured with unknown adapter %q\n", ins.Code, ins.Adapter)
			continue
		}

		adapterCfg := legacycore.DefaultLegacyConfig()
		adapterCfg.Host = cfg.Host
		adapterCfg.Port = cfg.Port
		adapterCfg.User = cfg.User
		adapterCfg.Password = cfg.Password
		adapterCfg.Database = cfg.Database
		adapterCfg.SSLMode = cfg.SSLMode
		adapterCfg.PollInterval = cfg.PollInterval
		adapterCfg.Config.InsurerCode = ins.Code
		adapterCfg.Config.InsurerName = ins.Name

		adapter, err := legacycore.New(adapterCfg)
		if err != nil {
			fmt.Printf("Warning: Failed to create adapter for %s: %v\n", ins.Code, err)
			continue
		}

		if err := adapter.Start(ctx); err != nil {
			fmt.Printf("Warning: Failed to start adapter for %s: %v\n", ins.Code, err)
			continue
		}

		go func(a carrier.Adapter) {
			if err := syncer.Run(ctx, a); err != nil {
				fmt.Printf("Warning: Insurer sync stopped: %v\n", err)
			}
		}(adapter)
		started++
	}

	if started > 0 {
		fmt.Printf("Insurer sync started for %d carrier(s)\n", started)
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "ClaimWise Coverage & Claims Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check EventStoreDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
