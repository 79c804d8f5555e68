package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	pbcmd "github.com/pocketbase/pocketbase/cmd"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/spf13/cobra"

	"raffle-system/config"
	"raffle-system/internal/handlers"
	"raffle-system/internal/services"
	"raffle-system/monitoring"
	"raffle-system/security"
	"raffle-system/utils"

	_ "raffle-system/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	utils.NewLogger(cfg.LogLevel, cfg.LogFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		if cfg.StoreBackend == config.BackendRedis {
			return err
		}
		slog.Warn("Redis unavailable, purchase rate limiting disabled", "url", cfg.RedisURL, "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	be, err := openBackend(app, cfg, redisClient)
	if err != nil {
		return err
	}
	defer be.close()
	slog.Info("Store selected", "backend", cfg.StoreBackend)

	// Initialize PubNub
	var notifier services.Notifier
	if cfg.PubNubEnabled() {
		pn := pubnub.NewPubNub(services.NewPubNubConfig(
			cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUserID,
		))
		notifier = services.NewPubNubNotifier(pn)
	}

	monitor := monitoring.NewMonitor(prometheus.DefaultRegisterer, be.store)

	// Initialize services
	raffleService := services.NewRaffleService(be.store)
	saleService := services.NewSaleService(be.store, notifier, monitor, services.SaleConfig{
		MaxCodeAttempts:       cfg.MaxCodeAttempts,
		MaxAllocationAttempts: cfg.MaxAllocationAttempts,
		DefaultPaymentMethod:  cfg.DefaultPaymentMethod,
	})
	drawService := services.NewDrawService(be.store, notifier, monitor)

	routes := handlers.Routes{
		Raffles: handlers.NewRaffleHandler(raffleService, saleService, drawService),
		Tickets: handlers.NewTicketHandler(raffleService),
		Admin:   handlers.NewAdminHandler(raffleService),
	}
	if redisClient != nil {
		routes.PurchaseLimit = security.NewRateLimiter(redisClient, cfg.PurchaseRateLimit, cfg.PurchaseRateWindow).PurchaseRateLimit()
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.RootCmd.AddCommand(newRaffleCommand(raffleService, drawService))

	// Start background tasks
	if cfg.EnableMetrics {
		go monitor.Run(ctx, cfg.MetricsRefresh)
		go serveMetrics(ctx, cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		routes.Register(e.Router)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := be.health(e.Request.Context()); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		slog.Info("Server routes registered")
		return e.Next()
	})

	// Start server
	app.RootCmd.AddCommand(pbcmd.NewSuperuserCommand(app))
	app.RootCmd.AddCommand(serveCommand(app, cfg.Port))
	return app.Execute()
}

// serveCommand is PocketBase's serve command listening on port unless
// --http is given. port may also be a full host:port address.
func serveCommand(app core.App, port string) *cobra.Command {
	serve := pbcmd.NewServeCommand(app, true)
	if port == "" {
		return serve
	}

	addr := port
	if !strings.Contains(addr, ":") {
		addr = "0.0.0.0:" + port
	}
	if err := serve.PersistentFlags().Set("http", addr); err != nil {
		slog.Warn("Ignoring PORT", "port", port, "error", err)
	}
	return serve
}

// serveMetrics exposes the default registry on its own port until ctx ends.
func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
