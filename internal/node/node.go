// Copyright 2025 Umbra Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/umbralabs-io/umbra"
	"github.com/umbralabs-io/umbra/internal/config"
	"github.com/umbralabs-io/umbra/token"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	durationOpts := []umbra.ConfigOptionFunc{}
	for _, d := range []struct {
		value string
		opt   func(time.Duration) umbra.ConfigOptionFunc
	}{
		{cfg.OrderLifetime, umbra.WithOrderLifetime},
		{cfg.LockDuration, umbra.WithLockDuration},
		{cfg.ComputeTimeout, umbra.WithComputeTimeout},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.value, err)
		}
		durationOpts = append(durationOpts, d.opt(parsed))
	}

	var schemeKey []byte
	if cfg.SchemeKeyFile != "" {
		var err error
		schemeKey, err = os.ReadFile(cfg.SchemeKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read scheme key: %w", err)
		}
	}

	supportedTokens := make([]token.TokenID, 0, len(cfg.SupportedTokens))
	for _, id := range cfg.SupportedTokens {
		supportedTokens = append(supportedTokens, token.TokenID(id))
	}

	opts := []umbra.ConfigOptionFunc{
		umbra.WithLogger(logger),
		umbra.WithDataDir(cfg.DataDir),
		umbra.WithAdmin(token.Address(cfg.Admin)),
		umbra.WithFeeCollector(token.Address(cfg.FeeCollector)),
		umbra.WithSupportedTokens(supportedTokens...),
		umbra.WithTradingFeeRate(cfg.TradingFeeRateBps),
		umbra.WithServiceFeeRate(cfg.ServiceFeeRateBps),
		umbra.WithShutdownTimeout(shutdownTimeout),
		umbra.WithTracing(cfg.Tracing),
		umbra.WithTracingStdout(cfg.TracingStdout),
		// Enable metrics with default prometheus registry
		umbra.WithPrometheusRegistry(prometheus.DefaultRegisterer),
	}
	opts = append(opts, durationOpts...)
	if schemeKey != nil {
		opts = append(opts, umbra.WithSchemeKey(schemeKey))
	}
	u, err := umbra.New(umbra.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		err := u.Run(signalCtx)
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
	case err := <-errChan:
		if err != nil {
			logger.Error("node error", "error", err)
			signalCtxStop()
			if stopErr := u.Stop(); stopErr != nil {
				logger.Error(
					"shutdown errors occurred during error cleanup",
					"error",
					stopErr,
				)
			}
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error(
					"metrics server shutdown error",
					"error",
					shutdownErr,
				)
			}
			return err
		}
		logger.Info("node stopped")
	}

	// Shutdown metrics server
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	// Shutdown node
	if err := u.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
