// Command labsim serves the lab instrument protocol backed by the simulated
// executor, for running the live strategy without hardware.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hypocycle/adapters/execution/simulated"
	"hypocycle/internal/config"
	"hypocycle/internal/labsim"
	"hypocycle/internal/logging"
	"hypocycle/internal/rng"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("failed to load configuration", zap.Error(err))
	}
	logger, err := logging.Init(cfg.Log)
	if err != nil {
		zap.L().Fatal("failed to init logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := rng.NewSource().SeededStream(ctx, "labsim", cfg.LabSim.Seed)
	if err != nil {
		logger.Fatal("failed to seed simulator", zap.Error(err))
	}
	executor := simulated.NewExecutor(stream, simulated.Config{NoiseFraction: cfg.Execution.NoiseFraction}, logger.Named("simulated"))

	srv := &http.Server{
		Addr: ":" + cfg.LabSim.Port,
		Handler: labsim.NewServer(executor, labsim.Config{
			FailSamples: cfg.LabSim.FailSamples,
		}, logger.Named("labsim")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting lab simulator",
			zap.String("addr", srv.Addr),
			zap.Int64("seed", cfg.LabSim.Seed),
			zap.Strings("fail_samples", cfg.LabSim.FailSamples))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
