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

// Package umbra implements a confidential fundraising and trading ledger
// engine. A Node wires together the token registry, encryption scheme and
// decryption oracle, vault custody, the confidential order book, and the
// campaign engine, and persists their state through the database package.
package umbra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/umbralabs-io/umbra/campaign"
	"github.com/umbralabs-io/umbra/database"
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
	"github.com/umbralabs-io/umbra/trading"
	"github.com/umbralabs-io/umbra/vault"
)

// EngineAccount is the identity the campaign engine uses when operating
// vaults on behalf of campaign participants.
const EngineAccount = token.Address("campaign-engine")

type Node struct {
	eventBus      *event.Bus
	db            *database.Database
	tokens        *token.Registry
	scheme        *fhe.Scheme
	oracle        *fhe.Oracle
	vaults        *vault.Manager
	trading       *trading.Ledger
	campaigns     *campaign.Engine
	shutdownFuncs []func(context.Context) error
	config        Config
	ready         chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir: n.config.dataDir,
		Logger:  n.config.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Initialize encryption scheme
	if n.config.schemeKey != nil {
		n.scheme, err = fhe.NewSchemeWithKey(n.config.schemeKey)
	} else {
		n.scheme, err = fhe.NewScheme()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize encryption scheme: %w", err)
	}
	n.oracle = fhe.NewOracle(fhe.OracleConfig{
		Scheme: n.scheme,
		Logger: n.config.logger,
	})
	// Initialize token registry
	n.tokens = token.NewRegistry(n.config.logger)
	for _, id := range n.config.supportedTokens {
		if err := n.tokens.Register(id); err != nil {
			return fmt.Errorf("failed to register token %s: %w", id, err)
		}
	}
	// Load vault manager
	n.vaults, err = vault.NewManager(vault.ManagerConfig{
		Logger:       n.config.logger,
		EventBus:     n.eventBus,
		PromRegistry: n.config.promRegistry,
		Tokens:       n.tokens,
		Admin:        n.config.admin,
		LockDuration: n.config.lockDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to load vault manager: %w", err)
	}
	// Load trading ledger
	n.trading, err = trading.NewLedger(trading.LedgerConfig{
		Logger:        n.config.logger,
		EventBus:      n.eventBus,
		PromRegistry:  n.config.promRegistry,
		Tokens:        n.tokens,
		Scheme:        n.scheme,
		Oracle:        n.oracle,
		Admin:         n.config.admin,
		FeeCollector:  n.config.feeCollector,
		FeeRateBps:    n.config.tradingFeeRateBps,
		OrderLifetime: n.config.orderLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to load trading ledger: %w", err)
	}
	for _, id := range n.config.supportedTokens {
		if err := n.trading.AddSupportedToken(n.config.admin, id); err != nil {
			return fmt.Errorf("failed to enable token %s: %w", id, err)
		}
	}
	// Load campaign engine. The engine operates vaults under its own
	// identity, which must be authorized first.
	if err := n.vaults.AuthorizeCaller(n.config.admin, EngineAccount); err != nil {
		return fmt.Errorf("failed to authorize campaign engine: %w", err)
	}
	n.campaigns, err = campaign.NewEngine(campaign.EngineConfig{
		Logger:            n.config.logger,
		EventBus:          n.eventBus,
		PromRegistry:      n.config.promRegistry,
		Tokens:            n.tokens,
		Scheme:            n.scheme,
		Oracle:            n.oracle,
		Vaults:            n.vaults,
		Admin:             n.config.admin,
		FeeCollector:      n.config.feeCollector,
		EngineAccount:     EngineAccount,
		ServiceFeeRateBps: n.config.serviceFeeRateBps,
		ComputeTimeout:    n.config.computeTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to load campaign engine: %w", err)
	}
	// Subscribe persistence hooks
	n.startPersistence()
	close(n.ready)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

// Ready returns a channel closed once all components are wired and the
// node is accepting operations.
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Tokens returns the node's token registry.
func (n *Node) Tokens() *token.Registry {
	return n.tokens
}

// Scheme returns the node's encryption scheme.
func (n *Node) Scheme() *fhe.Scheme {
	return n.scheme
}

// Vaults returns the node's vault manager.
func (n *Node) Vaults() *vault.Manager {
	return n.vaults
}

// Trading returns the node's trading ledger.
func (n *Node) Trading() *trading.Ledger {
	return n.trading
}

// Campaigns returns the node's campaign engine.
func (n *Node) Campaigns() *campaign.Engine {
	return n.campaigns
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: stop accepting new decryption work
	if n.oracle != nil {
		n.oracle.Stop()
	}

	// Phase 2: run registered shutdown functions (tracing, persistence)
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	// Phase 3: stop event delivery
	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	// Phase 4: close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
