package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robertarktes/ticket-wallet/internal/config"
	"github.com/robertarktes/ticket-wallet/internal/connectivity"
	"github.com/robertarktes/ticket-wallet/internal/gateway"
	httphandler "github.com/robertarktes/ticket-wallet/internal/http"
	"github.com/robertarktes/ticket-wallet/internal/observability"
	"github.com/robertarktes/ticket-wallet/internal/queue"
	"github.com/robertarktes/ticket-wallet/internal/storage/sqlite"
	"github.com/robertarktes/ticket-wallet/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	db, err := sqlite.Open(context.Background(), cfg.DBPath, cfg.StorageQuotaBytes)
	if err != nil {
		log.Fatalf("failed to open wallet db: %v", err)
	}
	defer db.Close()

	store := sqlite.NewTicketStore(db, logger)
	attempts := sqlite.NewAttemptStore(db)

	backend := gateway.NewClient(cfg.BackendBaseURL, cfg.DeviceID, cfg.BackendTimeout)
	monitor := connectivity.NewMonitor(backend, logger)
	q := queue.New(attempts, backend, monitor, logger)
	reconciler := syncer.NewReconciler(store, backend, monitor, q, cfg.OwnerID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconnect edge: the queue drains independently of the sync pass;
	// they touch different durable collections.
	unsubscribe := monitor.Subscribe(func(online bool) {
		if online {
			go func() {
				if err := q.Drain(ctx); err != nil {
					logger.WithError(err).Warn("reconnect drain failed")
				}
			}()
		}
	})
	defer unsubscribe()

	go monitor.Run(ctx, cfg.ProbeInterval)
	go reconciler.Run(ctx, cfg.SyncInterval)

	handlers := httphandler.NewHandlers(store, q, reconciler, monitor, backend, logger)
	r := httphandler.SetupRouter(handlers, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("walletd listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown walletd ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("walletd exiting")
}
