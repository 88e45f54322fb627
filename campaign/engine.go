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

// Package campaign implements the confidential fundraising engine: campaign
// lifecycle, secret contribution intake with dual submission, the
// decryption-triggered settlement path, and reward/refund claims backed by
// the vault manager.
package campaign

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
	"github.com/umbralabs-io/umbra/vault"
)

const (
	// MaxServiceFeeRateBps caps the service fee at 1%.
	MaxServiceFeeRateBps = 100

	// DefaultServiceFeeRateBps is the fee on successfully raised totals.
	DefaultServiceFeeRateBps = 50

	// DefaultComputeTimeout is how long a total computation may remain
	// unresolved before an administrator can recover the campaign.
	DefaultComputeTimeout = time.Hour
)

var (
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrInvalidParams       = errors.New("invalid campaign parameters")
	ErrNotLive             = errors.New("campaign is not live")
	ErrOutsideWindow       = errors.New("outside contribution window")
	ErrBidOutOfRange       = errors.New("contribution outside bid range")
	ErrBidLimitExceeded    = errors.New("cumulative contribution exceeds max bid")
	ErrComputeInProgress   = errors.New("total computation already in progress")
	ErrComputeFinished     = errors.New("totals already computed")
	ErrNotClosed           = errors.New("campaign has not closed")
	ErrNotSuccessful       = errors.New("campaign is not successful")
	ErrNotFailed           = errors.New("campaign has not failed")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrNothingToReclaim    = errors.New("nothing to reclaim")
	ErrCreatorOnly         = errors.New("campaign creator only")
	ErrAdminOnly           = errors.New("administrator only")
	ErrAlreadySettled      = errors.New("campaign already settled")
	ErrComputeNotStalled   = errors.New("computation is not stalled")
	ErrFeeRateTooHigh      = errors.New("fee rate exceeds maximum")
	ErrZeroAddress         = errors.New("zero address")
)

// State is the campaign lifecycle state. Transitions are monotonic:
// Live -> Processing -> Successful | Failed. Successful and Failed are
// terminal. The reference system also declared Draft and Completed states
// with no transitions into them; they are omitted here.
type State uint8

const (
	Live State = iota
	Processing
	Successful
	Failed
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Processing:
		return "processing"
	case Successful:
		return "successful"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ComputeState tracks the decryption round-trip for a campaign's hidden
// total. At most one request is outstanding per campaign.
type ComputeState uint8

const (
	ComputeIdle ComputeState = iota
	Computing
	ComputeFinished
)

// Campaign is a time-bounded fundraising round.
type Campaign struct {
	ID            uint64
	Creator       token.Address
	RewardToken   token.TokenID
	TokenSupply   uint64
	FundingGoal   uint64
	PricePerToken uint64
	LaunchTime    time.Time
	ClosingTime   time.Time
	MinBid        uint64
	MaxBid        uint64
	Live_         bool
	State         State
	Info          string
	EncTotal      fhe.Ciphertext
	// RevealedTotal is only meaningful once ComputeState is
	// ComputeFinished.
	RevealedTotal uint64
	ComputeState  ComputeState
	ComputeStart  time.Time
}

// Contribution is one secret contribution. A contributor may have multiple
// entries per campaign; claim and reclaim are idempotent per entry via the
// flags.
type Contribution struct {
	Contributor    token.Address
	Timestamp      time.Time
	EncAmount      fhe.Ciphertext
	Value          uint64
	RewardsClaimed bool
	FundsReclaimed bool
}

// rewardScale is the fixed-point scale for price-per-token arithmetic.
var rewardScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// EngineConfig configures a campaign Engine.
type EngineConfig struct {
	Logger       *slog.Logger
	EventBus     *event.Bus
	PromRegistry prometheus.Registerer
	Tokens       *token.Registry
	Scheme       *fhe.Scheme
	Oracle       *fhe.Oracle
	Vaults       *vault.Manager
	Admin        token.Address
	FeeCollector token.Address
	// EngineAccount is the identity the engine uses when calling the vault
	// manager; it must be an authorized vault caller.
	EngineAccount token.Address
	// EscrowAccount holds contributed native value until settlement.
	EscrowAccount token.Address
	// ServiceFeeRateBps overrides DefaultServiceFeeRateBps when non-zero.
	ServiceFeeRateBps uint64
	// ComputeTimeout overrides DefaultComputeTimeout when non-zero.
	ComputeTimeout time.Duration
}

// Engine owns campaign and contribution records. All mutations, including
// oracle callbacks, are serialized under a single mutex.
type Engine struct {
	logger        *slog.Logger
	eventBus      *event.Bus
	tokens        *token.Registry
	scheme        *fhe.Scheme
	oracle        *fhe.Oracle
	vaults        *vault.Manager
	metrics       *engineMetrics
	campaigns     map[uint64]*Campaign
	contributions map[uint64][]*Contribution
	userTotals    map[uint64]map[token.Address]uint64
	userCampaigns map[token.Address][]uint64
	userSeen      map[token.Address]map[uint64]bool
	// requestCampaign keys oracle callbacks directly by request id so two
	// campaigns computing concurrently cannot collide.
	requestCampaign map[fhe.RequestID]uint64
	admin           token.Address
	feeCollector    token.Address
	engineAccount   token.Address
	escrow          token.Address
	feeRateBps      uint64
	computeTimeout  time.Duration
	nextCampaignID  uint64
	mu              sync.RWMutex
}

// NewEngine creates a campaign Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("no token registry provided")
	}
	if cfg.Scheme == nil || cfg.Oracle == nil {
		return nil, errors.New("no encryption scheme or oracle provided")
	}
	if cfg.Vaults == nil {
		return nil, errors.New("no vault manager provided")
	}
	if cfg.Admin == "" {
		return nil, errors.New("no administrator address provided")
	}
	if cfg.FeeCollector == "" {
		return nil, errors.New("no fee collector address provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.EngineAccount == "" {
		cfg.EngineAccount = "campaign-engine"
	}
	if cfg.EscrowAccount == "" {
		cfg.EscrowAccount = "campaign-escrow"
	}
	if cfg.ServiceFeeRateBps == 0 {
		cfg.ServiceFeeRateBps = DefaultServiceFeeRateBps
	}
	if cfg.ServiceFeeRateBps > MaxServiceFeeRateBps {
		return nil, ErrFeeRateTooHigh
	}
	if cfg.ComputeTimeout == 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	e := &Engine{
		logger:          cfg.Logger,
		eventBus:        cfg.EventBus,
		tokens:          cfg.Tokens,
		scheme:          cfg.Scheme,
		oracle:          cfg.Oracle,
		vaults:          cfg.Vaults,
		campaigns:       make(map[uint64]*Campaign),
		contributions:   make(map[uint64][]*Contribution),
		userTotals:      make(map[uint64]map[token.Address]uint64),
		userCampaigns:   make(map[token.Address][]uint64),
		userSeen:        make(map[token.Address]map[uint64]bool),
		requestCampaign: make(map[fhe.RequestID]uint64),
		admin:           cfg.Admin,
		feeCollector:    cfg.FeeCollector,
		engineAccount:   cfg.EngineAccount,
		escrow:          cfg.EscrowAccount,
		feeRateBps:      cfg.ServiceFeeRateBps,
		computeTimeout:  cfg.ComputeTimeout,
		nextCampaignID:  1,
	}
	if cfg.PromRegistry != nil {
		e.metrics = newEngineMetrics(cfg.PromRegistry)
	}
	return e, nil
}

// EngineAccount returns the identity the engine uses for vault calls.
func (e *Engine) EngineAccount() token.Address {
	return e.engineAccount
}

// EscrowAccount returns the account holding contributed value.
func (e *Engine) EscrowAccount() token.Address {
	return e.escrow
}

// LaunchParams is the input to LaunchCampaign.
type LaunchParams struct {
	RewardToken   token.TokenID
	TokenSupply   uint64
	FundingGoal   uint64
	PricePerToken uint64
	LaunchTime    time.Time
	ClosingTime   time.Time
	MinBid        uint64
	MaxBid        uint64
	Info          string
}

// LaunchCampaign validates parameters, deposits the reward token supply
// into a new vault under the allocated campaign id, and opens the campaign.
// The creator must have approved the vault custody account for the supply.
func (e *Engine) LaunchCampaign(
	creator token.Address,
	params LaunchParams,
) (uint64, error) {
	if creator == "" {
		return 0, ErrZeroAddress
	}
	if params.TokenSupply == 0 || params.FundingGoal == 0 ||
		params.PricePerToken == 0 || params.MinBid == 0 {
		return 0, ErrInvalidParams
	}
	if params.MaxBid < params.MinBid {
		return 0, ErrInvalidParams
	}
	if !params.ClosingTime.After(params.LaunchTime) {
		return 0, ErrInvalidParams
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	encTotal, err := e.scheme.Zero()
	if err != nil {
		return 0, err
	}
	id := e.nextCampaignID
	if err := e.vaults.Deposit(
		e.engineAccount,
		params.RewardToken,
		creator,
		params.TokenSupply,
		id,
	); err != nil {
		return 0, err
	}
	e.nextCampaignID++
	c := &Campaign{
		ID:            id,
		Creator:       creator,
		RewardToken:   params.RewardToken,
		TokenSupply:   params.TokenSupply,
		FundingGoal:   params.FundingGoal,
		PricePerToken: params.PricePerToken,
		LaunchTime:    params.LaunchTime,
		ClosingTime:   params.ClosingTime,
		MinBid:        params.MinBid,
		MaxBid:        params.MaxBid,
		Live_:         true,
		State:         Live,
		Info:          params.Info,
		EncTotal:      encTotal,
	}
	e.campaigns[id] = c
	e.logger.Info(
		"campaign launched",
		"component", "campaign",
		"campaign_id", id,
		"creator", string(creator),
		"goal", params.FundingGoal,
	)
	if e.metrics != nil {
		e.metrics.liveCampaigns.Inc()
	}
	e.publish(LaunchedEventType, LaunchedEvent{
		CampaignID: id,
		Creator:    creator,
		Goal:       params.FundingGoal,
	})
	return id, nil
}

// ContributeSecretly records a contribution. The encrypted amount and the
// transferred value form the dual submission; the value IS the
// contribution and moves into escrow atomically with the record.
func (e *Engine) ContributeSecretly(
	contributor token.Address,
	campaignID uint64,
	encAmount fhe.Ciphertext,
	value uint64,
) error {
	if contributor == "" {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if !c.Live_ || c.State != Live {
		return ErrNotLive
	}
	now := time.Now()
	if now.Before(c.LaunchTime) || now.After(c.ClosingTime) {
		return ErrOutsideWindow
	}
	if value < c.MinBid || value > c.MaxBid {
		return ErrBidOutOfRange
	}
	totals := e.userTotals[campaignID]
	if totals == nil {
		totals = make(map[token.Address]uint64)
		e.userTotals[campaignID] = totals
	}
	if totals[contributor]+value > c.MaxBid {
		return ErrBidLimitExceeded
	}
	if err := e.scheme.Verify(encAmount, value); err != nil {
		return err
	}
	if err := e.tokens.Pay(contributor, e.escrow, value); err != nil {
		return err
	}
	newTotal, err := e.scheme.Add(c.EncTotal, encAmount)
	if err != nil {
		// Escrow already took the value; hand it back so the failed call
		// leaves no partial state.
		if payErr := e.tokens.Pay(e.escrow, contributor, value); payErr != nil {
			e.logger.Error(
				"failed to refund contribution after aggregate error",
				"component", "campaign",
				"campaign_id", campaignID,
				"error", payErr,
			)
		}
		return err
	}
	c.EncTotal = newTotal
	totals[contributor] += value
	e.contributions[campaignID] = append(
		e.contributions[campaignID],
		&Contribution{
			Contributor: contributor,
			Timestamp:   now,
			EncAmount:   encAmount,
			Value:       value,
		},
	)
	if !e.userSeen[contributor][campaignID] {
		if e.userSeen[contributor] == nil {
			e.userSeen[contributor] = make(map[uint64]bool)
		}
		e.userSeen[contributor][campaignID] = true
		e.userCampaigns[contributor] = append(
			e.userCampaigns[contributor],
			campaignID,
		)
	}
	e.logger.Info(
		"secret contribution",
		"component", "campaign",
		"campaign_id", campaignID,
		"contributor", string(contributor),
	)
	if e.metrics != nil {
		e.metrics.contributions.Inc()
	}
	e.publish(ContributedEventType, ContributedEvent{
		CampaignID:  campaignID,
		Contributor: contributor,
	})
	return nil
}

// UpdateServiceFeeRate changes the service fee rate, bounded by
// MaxServiceFeeRateBps. Administrator only.
func (e *Engine) UpdateServiceFeeRate(caller token.Address, bps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrAdminOnly
	}
	if bps > MaxServiceFeeRateBps {
		return ErrFeeRateTooHigh
	}
	e.feeRateBps = bps
	return nil
}

// UpdateFeeCollector changes the fee recipient. Administrator only.
func (e *Engine) UpdateFeeCollector(caller, collector token.Address) error {
	if collector == "" {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrAdminOnly
	}
	e.feeCollector = collector
	return nil
}

// GetCampaign returns a copy of a campaign record.
func (e *Engine) GetCampaign(campaignID uint64) (Campaign, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.campaigns[campaignID]
	if !ok {
		return Campaign{}, ErrCampaignNotFound
	}
	return *c, nil
}

// GetLiveCampaigns returns copies of all campaigns still accepting
// contributions, in id ascending order.
func (e *Engine) GetLiveCampaigns() []Campaign {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Campaign, 0)
	for id := uint64(1); id < e.nextCampaignID; id++ {
		c, ok := e.campaigns[id]
		if !ok {
			continue
		}
		if c.Live_ && c.State == Live {
			out = append(out, *c)
		}
	}
	return out
}

// GetUserCampaigns returns the ids of campaigns a user contributed to.
func (e *Engine) GetUserCampaigns(user token.Address) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.userCampaigns[user])
}

// GetContributions returns copies of a campaign's contribution entries.
func (e *Engine) GetContributions(campaignID uint64) []Contribution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entries := e.contributions[campaignID]
	out := make([]Contribution, 0, len(entries))
	for _, entry := range entries {
		out = append(out, *entry)
	}
	return out
}

func (e *Engine) publish(eventType event.EventType, data any) {
	if e.eventBus != nil {
		e.eventBus.Publish(eventType, event.New(eventType, data))
	}
}
