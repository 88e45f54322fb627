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

package umbra

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbralabs-io/umbra/token"
)

type Config struct {
	promRegistry         prometheus.Registerer
	logger               *slog.Logger
	dataDir              string
	admin                token.Address
	feeCollector         token.Address
	supportedTokens      []token.TokenID
	schemeKey            []byte
	metricsListenAddress string
	tradingFeeRateBps    uint64
	serviceFeeRateBps    uint64
	lockDuration         time.Duration
	orderLifetime        time.Duration
	computeTimeout       time.Duration
	shutdownTimeout      time.Duration
	tracing              bool
	tracingStdout        bool
}

func (n *Node) configValidate() error {
	if n.config.admin == "" {
		return errors.New("no administrator address defined")
	}
	if n.config.feeCollector == "" {
		return errors.New("no fee collector address defined")
	}
	if n.config.schemeKey != nil && len(n.config.schemeKey) != 32 {
		return errors.New("scheme key must be 32 bytes")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new umbra config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithPrometheusRegistry specifies the prometheus registry to use for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithAdmin specifies the administrator address. This is required
func WithAdmin(admin token.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.admin = admin
	}
}

// WithFeeCollector specifies the address that receives trading and service fees
func WithFeeCollector(collector token.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.feeCollector = collector
	}
}

// WithSupportedTokens specifies the token(s) registered and enabled for trading at startup
func WithSupportedTokens(tokens ...token.TokenID) ConfigOptionFunc {
	return func(c *Config) {
		c.supportedTokens = append(c.supportedTokens, tokens...)
	}
}

// WithSchemeKey specifies the 32-byte key for the encryption scheme. The
// default is a fresh random key, which means sealed ciphertexts from a
// previous run cannot be restored
func WithSchemeKey(key []byte) ConfigOptionFunc {
	return func(c *Config) {
		c.schemeKey = key
	}
}

// WithMetricsListenAddress specifies the listen address for the prometheus metrics endpoint. This defaults to disabled
func WithMetricsListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.metricsListenAddress = address
	}
}

// WithTradingFeeRate specifies the trading fee rate in basis points
func WithTradingFeeRate(bps uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.tradingFeeRateBps = bps
	}
}

// WithServiceFeeRate specifies the campaign service fee rate in basis points
func WithServiceFeeRate(bps uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.serviceFeeRateBps = bps
	}
}

// WithLockDuration specifies the vault time-lock duration
func WithLockDuration(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.lockDuration = d
	}
}

// WithOrderLifetime specifies how long placed orders remain matchable
func WithOrderLifetime(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.orderLifetime = d
	}
}

// WithComputeTimeout specifies how long a campaign total computation may
// remain outstanding before it can be recovered
func WithComputeTimeout(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.computeTimeout = d
	}
}

// WithTracing enables tracing
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to be enabled
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
