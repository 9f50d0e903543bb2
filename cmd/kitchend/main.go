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

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"kitchen-dashboard/config"
	"kitchen-dashboard/internal/api"
	"kitchen-dashboard/internal/db"
	"kitchen-dashboard/internal/kitchen"
	"kitchen-dashboard/internal/kitchenapi"
	"kitchen-dashboard/internal/metrics"
	"kitchen-dashboard/internal/mirror"
	"kitchen-dashboard/internal/store"
)

var (
	configPath string
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "kitchend",
	Short: "Realtime kitchen order and table dashboard",
	Long: `kitchend keeps a branch's kitchen view in sync with the ordering backend over its
realtime socket, reconciles missed orders over REST and serves the dashboard API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG_PATH or ./config/config.yaml)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP port, overrides server.port")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Setup logger
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("kitchend ")

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	log.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		log.Println("Warning: VAPID keys are not configured; push cues are disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Println("database initialized successfully")
	appStore := store.NewGormStore(gormDB)

	var publisher mirror.Publisher = mirror.Nop{}
	if cfg.Mirror.Enabled {
		amqpPublisher, err := mirror.Dial(cfg.Mirror.URL, cfg.Mirror.Exchange, cfg.BranchID)
		if err != nil {
			return fmt.Errorf("failed to start event mirror: %w", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Printf("mirroring events to exchange %q", cfg.Mirror.Exchange)
	}

	m := metrics.New()
	engine := kitchen.New(cfg, kitchen.Deps{
		Store:   appStore,
		API:     kitchenapi.New(cfg),
		Mirror:  publisher,
		Metrics: m,
		WebPush: webpushOptions,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	router := api.NewRouter(engine, appStore, webpushOptions, m, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		log.Printf("Error: HTTP server ListenAndServe: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error: HTTP server Shutdown: %v", err)
	}
	cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("Warning: event consumer did not stop in time")
	}

	log.Println("Server gracefully stopped")
	return nil
}
