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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "umbra.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DataDir         string   `yaml:"dataDir"         split_words:"true"`
	Admin           string   `yaml:"admin"`
	FeeCollector    string   `yaml:"feeCollector"    split_words:"true"`
	SupportedTokens []string `yaml:"supportedTokens" split_words:"true"`
	// SchemeKeyFile points at a file holding the 32-byte scheme key. An
	// empty value generates a fresh key on startup, which means sealed
	// state from previous runs cannot be restored.
	SchemeKeyFile     string `yaml:"schemeKeyFile"     envconfig:"UMBRA_SCHEME_KEY_FILE"`
	BindAddr          string `yaml:"bindAddr"          split_words:"true"`
	ShutdownTimeout   string `yaml:"shutdownTimeout"   split_words:"true"`
	OrderLifetime     string `yaml:"orderLifetime"     split_words:"true"`
	LockDuration      string `yaml:"lockDuration"      split_words:"true"`
	ComputeTimeout    string `yaml:"computeTimeout"    split_words:"true"`
	MetricsPort       uint   `yaml:"metricsPort"       split_words:"true"`
	TradingFeeRateBps uint64 `yaml:"tradingFeeRateBps" envconfig:"UMBRA_TRADING_FEE_RATE_BPS"`
	ServiceFeeRateBps uint64 `yaml:"serviceFeeRateBps" envconfig:"UMBRA_SERVICE_FEE_RATE_BPS"`
	Tracing           bool   `yaml:"tracing"`
	TracingStdout     bool   `yaml:"tracingStdout"     split_words:"true"`
}

var globalConfig = &Config{
	DataDir:         ".umbra",
	BindAddr:        "0.0.0.0",
	MetricsPort:     12798,
	ShutdownTimeout: DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.umbra/umbra.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".umbra", "umbra.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/umbra/umbra.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/umbra/umbra.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Load config values from environment variables
	// We use "dummy" as the app name to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}
