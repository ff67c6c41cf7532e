package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/coingraph/pkg/config"
	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/pipeline"
	"github.com/alim08/coingraph/pkg/scheduler"
)

func main() {
	// 1. Load configuration & init logging
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()
	log := logger.Named("pipeline")

	// 2. Graph store, cache and stages
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	p, err := pipeline.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("pipeline init failed", zap.Error(err))
	}

	// 3. Scheduler
	sched := scheduler.New(cfg.ShutdownGrace, p.Tasks()...)
	srv := startMetricsServer(cfg.MetricsPort, p, sched)

	if err := sched.Start(context.Background()); err != nil {
		log.Fatal("scheduler start failed", zap.Error(err))
	}
	log.Info("pipeline running",
		zap.String("store", cfg.Store),
		zap.String("data_dir", p.Records.Dir()),
		zap.Int("wallet_pool", len(p.Synthesizer.Pool())),
		zap.Duration("fetch_interval", cfg.FetchInterval),
		zap.Duration("push_interval", cfg.PushInterval),
		zap.Duration("simulate_interval", cfg.SimulateInterval),
		zap.Duration("sweep_interval", cfg.SweepInterval))

	// 4. Wait for SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received, stopping tasks")

	exitCode := 0
	if err := sched.Stop(); err != nil {
		log.Error("tasks did not stop cleanly", zap.Error(err))
		exitCode = 1
		if errors.Is(err, scheduler.ErrGraceExceeded) {
			// cancelled work gets a moment to unwind before resources close
			select {
			case <-sched.Done():
			case <-time.After(2 * time.Second):
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown", zap.Error(err))
	}
	if err := p.Close(shutdownCtx); err != nil {
		log.Error("close failed", zap.Error(err))
	}
	log.Info("pipeline stopped")
	logger.Log.Sync()
	os.Exit(exitCode)
}
