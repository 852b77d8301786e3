package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"onsite-tracker-backend/config"
	"onsite-tracker-backend/internal/api"
	"onsite-tracker-backend/internal/coordinator"
	"onsite-tracker-backend/internal/db"
	"onsite-tracker-backend/internal/evaluator"
	"onsite-tracker-backend/internal/ledger"
	"onsite-tracker-backend/internal/notification"
	"onsite-tracker-backend/internal/poller"
	"onsite-tracker-backend/internal/registry"
	"onsite-tracker-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/robfig/cron/v3"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "onsite-tracker ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	location, err := time.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		logger.Fatalf("invalid timezone %q: %v", cfg.Tracker.Timezone, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	reg := registry.New(appStore)
	led := ledger.New(appStore)
	eval := evaluator.New(cfg.Tracker.EvaluationCooldown, cfg.Tracker.MinAccuracyMeters)

	dispatcher := notification.NewDispatcher(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	dispatcher.Start(ctx)

	coord := coordinator.New(coordinator.Config{
		AutoActionTimeout: cfg.Tracker.AutoActionTimeout,
		EntryDelay:        time.Duration(cfg.Tracker.EntryDelayMinutes) * time.Minute,
		ExitBackdate1:     time.Duration(cfg.Tracker.ExitBackdateOption1Mins) * time.Minute,
		ExitBackdate2:     time.Duration(cfg.Tracker.ExitBackdateOption2Mins) * time.Minute,
		Location:          location,
		WorkHoursStart:    cfg.Tracker.WorkHoursStart,
		WorkHoursEnd:      cfg.Tracker.WorkHoursEnd,
		AllowOutsideHours: cfg.Tracker.AllowOutsideHours,
	}, led, dispatcher, appStore, eval)
	go coord.Run(ctx)

	// Initialize and run the position poller in the background
	pollerSvc := poller.NewService(cfg, coord)
	go pollerSvc.Run(ctx)

	// The skip-today list is day-scoped; clear it at local midnight.
	scheduler := cron.New(cron.WithLocation(location))
	if _, err := scheduler.AddFunc("0 0 * * *", coord.ResetSkippedToday); err != nil {
		logger.Fatalf("failed to schedule midnight reset: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize router
	handler := api.NewHandler(appStore, reg, led, coord, &webpushOptions, location)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
