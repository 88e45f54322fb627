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

// Package trading implements the confidential trading ledger: per-trader
// encrypted balances with plaintext lock amounts, an order book with dual
// submission of encrypted and plaintext order terms, and the matching
// engine. All mutations across balances and the book are serialized under a
// single ledger mutex, so matching never observes a torn order state.
package trading

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
)

const (
	// PriceScale is the fixed-point denominator for order prices: a price
	// of PriceScale means one quote unit per base unit.
	PriceScale = 1_000_000

	// MaxFeeRateBps caps the trading fee at 1%.
	MaxFeeRateBps = 100

	// DefaultFeeRateBps is the trading fee applied to executed value.
	DefaultFeeRateBps = 30

	// DefaultOrderLifetime is how long an order stays matchable after
	// placement.
	DefaultOrderLifetime = 24 * time.Hour
)

var (
	ErrUnsupportedToken    = errors.New("token not supported")
	ErrSameToken           = errors.New("base and quote tokens must differ")
	ErrZeroAmount          = errors.New("zero amount")
	ErrZeroPrice           = errors.New("zero price")
	ErrInsufficientBalance = errors.New("insufficient unlocked balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNotOrderOwner       = errors.New("not the order owner")
	ErrOrderNotActive      = errors.New("order is not active")
	ErrAdminOnly           = errors.New("administrator only")
	ErrFeeRateTooHigh      = errors.New("fee rate exceeds maximum")
	ErrValueOverflow       = errors.New("value computation overflows")
	ErrValueTooSmall       = errors.New("order value below one quote unit")
	ErrZeroAddress         = errors.New("zero address")
)

// TraderBalance tracks a trader's holdings of one token. The balance itself
// is encrypted; the locked amount is plaintext bookkeeping for open orders.
// The invariant locked <= decrypt(balance) is enforced at lock time, not
// continuously.
type TraderBalance struct {
	Balance         fhe.Ciphertext
	Locked          uint64
	TotalDeposited  uint64
	TotalWithdrawn  uint64
	UpdatedAt       time.Time
}

type balanceKey struct {
	trader token.Address
	token  token.TokenID
}

// LedgerConfig configures a trading Ledger.
type LedgerConfig struct {
	Logger       *slog.Logger
	EventBus     *event.Bus
	PromRegistry prometheus.Registerer
	Tokens       *token.Registry
	Scheme       *fhe.Scheme
	Oracle       *fhe.Oracle
	Admin        token.Address
	FeeCollector token.Address
	// CustodyAccount is the registry account holding traded funds.
	CustodyAccount token.Address
	// FeeRateBps overrides DefaultFeeRateBps when non-zero.
	FeeRateBps uint64
	// OrderLifetime overrides DefaultOrderLifetime when non-zero.
	OrderLifetime time.Duration
}

// Ledger is the confidential trading venue.
type Ledger struct {
	logger       *slog.Logger
	eventBus     *event.Bus
	tokens       *token.Registry
	scheme       *fhe.Scheme
	oracle       *fhe.Oracle
	metrics      *ledgerMetrics
	balances     map[balanceKey]*TraderBalance
	orders       map[uint64]*Order
	traderOrders map[token.Address][]uint64
	supported    map[token.TokenID]bool
	admin        token.Address
	feeCollector token.Address
	custody      token.Address
	feeRateBps   uint64
	lifetime     time.Duration
	nextOrderID  uint64
	mu           sync.RWMutex
}

// NewLedger creates a trading Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("no token registry provided")
	}
	if cfg.Scheme == nil || cfg.Oracle == nil {
		return nil, errors.New("no encryption scheme or oracle provided")
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
	if cfg.CustodyAccount == "" {
		cfg.CustodyAccount = "trading-custody"
	}
	if cfg.FeeRateBps == 0 {
		cfg.FeeRateBps = DefaultFeeRateBps
	}
	if cfg.FeeRateBps > MaxFeeRateBps {
		return nil, ErrFeeRateTooHigh
	}
	if cfg.OrderLifetime == 0 {
		cfg.OrderLifetime = DefaultOrderLifetime
	}
	l := &Ledger{
		logger:       cfg.Logger,
		eventBus:     cfg.EventBus,
		tokens:       cfg.Tokens,
		scheme:       cfg.Scheme,
		oracle:       cfg.Oracle,
		balances:     make(map[balanceKey]*TraderBalance),
		orders:       make(map[uint64]*Order),
		traderOrders: make(map[token.Address][]uint64),
		supported:    make(map[token.TokenID]bool),
		admin:        cfg.Admin,
		feeCollector: cfg.FeeCollector,
		custody:      cfg.CustodyAccount,
		feeRateBps:   cfg.FeeRateBps,
		lifetime:     cfg.OrderLifetime,
		nextOrderID:  1,
	}
	if cfg.PromRegistry != nil {
		l.metrics = newLedgerMetrics(cfg.PromRegistry)
	}
	return l, nil
}

// CustodyAccount returns the registry account holding traded funds.
func (l *Ledger) CustodyAccount() token.Address {
	return l.custody
}

// AddSupportedToken enables trading in a token. Administrator only.
func (l *Ledger) AddSupportedToken(caller token.Address, id token.TokenID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return ErrAdminOnly
	}
	if !l.tokens.Exists(id) {
		return ErrUnsupportedToken
	}
	l.supported[id] = true
	return nil
}

// RemoveSupportedToken disables trading in a token. Administrator only.
// Existing balances remain withdrawable.
func (l *Ledger) RemoveSupportedToken(caller token.Address, id token.TokenID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return ErrAdminOnly
	}
	delete(l.supported, id)
	return nil
}

// UpdateTradingFeeRate changes the fee rate, bounded by MaxFeeRateBps.
// Administrator only.
func (l *Ledger) UpdateTradingFeeRate(caller token.Address, bps uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return ErrAdminOnly
	}
	if bps > MaxFeeRateBps {
		return ErrFeeRateTooHigh
	}
	l.feeRateBps = bps
	return nil
}

// UpdateFeeCollector changes the fee recipient. Administrator only.
func (l *Ledger) UpdateFeeCollector(caller, collector token.Address) error {
	if collector == "" {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.admin {
		return ErrAdminOnly
	}
	l.feeCollector = collector
	return nil
}

// DepositTokens moves tokens from the trader into ledger custody and adds
// them to the trader's encrypted balance. The trader must have approved the
// custody account as spender.
func (l *Ledger) DepositTokens(
	trader token.Address,
	id token.TokenID,
	amount uint64,
) error {
	if trader == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.supported[id] {
		return ErrUnsupportedToken
	}
	if err := l.tokens.TransferFrom(
		id, l.custody, trader, l.custody, amount,
	); err != nil {
		return err
	}
	bal, err := l.creditLocked(trader, id, amount)
	if err != nil {
		return err
	}
	bal.TotalDeposited += amount
	l.logger.Info(
		"trader deposit",
		"component", "trading",
		"trader", string(trader),
		"token", string(id),
		"amount", amount,
	)
	l.publish(DepositEventType, DepositEvent{
		Trader: trader,
		Token:  id,
		Amount: amount,
	})
	return nil
}

// WithdrawTokens moves unlocked funds back to the trader. The available
// balance check is an attested comparison over the encrypted balance.
func (l *Ledger) WithdrawTokens(
	trader token.Address,
	id token.TokenID,
	amount uint64,
) error {
	if trader == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[balanceKey{trader: trader, token: id}]
	if !ok {
		return ErrInsufficientBalance
	}
	if err := l.requireCovered(bal, amount); err != nil {
		return err
	}
	newBal, err := l.scheme.SubPlain(bal.Balance, amount)
	if err != nil {
		return err
	}
	if err := l.tokens.Transfer(id, l.custody, trader, amount); err != nil {
		return err
	}
	bal.Balance = newBal
	bal.TotalWithdrawn += amount
	bal.UpdatedAt = time.Now()
	l.logger.Info(
		"trader withdraw",
		"component", "trading",
		"trader", string(trader),
		"token", string(id),
		"amount", amount,
	)
	l.publish(WithdrawEventType, WithdrawEvent{
		Trader: trader,
		Token:  id,
		Amount: amount,
	})
	return nil
}

// GetTraderBalance returns the trader's locked amount and cumulative
// deposit/withdraw totals. The encrypted balance itself is not revealed.
func (l *Ledger) GetTraderBalance(
	trader token.Address,
	id token.TokenID,
) (TraderBalance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, ok := l.balances[balanceKey{trader: trader, token: id}]
	if !ok {
		return TraderBalance{}, false
	}
	return *bal, true
}

// creditLocked adds to a trader's encrypted balance. Caller holds the mutex.
func (l *Ledger) creditLocked(
	trader token.Address,
	id token.TokenID,
	amount uint64,
) (*TraderBalance, error) {
	key := balanceKey{trader: trader, token: id}
	bal, ok := l.balances[key]
	if !ok {
		zero, err := l.scheme.Zero()
		if err != nil {
			return nil, err
		}
		bal = &TraderBalance{Balance: zero}
		l.balances[key] = bal
	}
	newBal, err := l.scheme.AddPlain(bal.Balance, amount)
	if err != nil {
		return nil, err
	}
	bal.Balance = newBal
	bal.UpdatedAt = time.Now()
	return bal, nil
}

// debitLocked subtracts from a trader's encrypted balance without a coverage
// check; callers must have established coverage. Caller holds the mutex.
func (l *Ledger) debitLocked(
	trader token.Address,
	id token.TokenID,
	amount uint64,
) error {
	key := balanceKey{trader: trader, token: id}
	bal, ok := l.balances[key]
	if !ok {
		return ErrInsufficientBalance
	}
	newBal, err := l.scheme.SubPlain(bal.Balance, amount)
	if err != nil {
		return err
	}
	bal.Balance = newBal
	bal.UpdatedAt = time.Now()
	return nil
}

// requireCovered verifies locked + amount <= decrypt(balance) via an
// attested comparison. Caller holds the mutex.
func (l *Ledger) requireCovered(bal *TraderBalance, amount uint64) error {
	needed := bal.Locked + amount
	if needed < amount {
		return ErrValueOverflow
	}
	cmp, err := l.scheme.GtePlain(bal.Balance, needed)
	if err != nil {
		return err
	}
	covered, err := l.oracle.CompareNow(cmp)
	if err != nil {
		return err
	}
	if !covered {
		return ErrInsufficientBalance
	}
	return nil
}

// lockBalance reserves funds against an open order. Caller holds the mutex.
func (l *Ledger) lockBalance(
	trader token.Address,
	id token.TokenID,
	amount uint64,
) error {
	bal, ok := l.balances[balanceKey{trader: trader, token: id}]
	if !ok {
		return ErrInsufficientBalance
	}
	if err := l.requireCovered(bal, amount); err != nil {
		return err
	}
	bal.Locked += amount
	bal.UpdatedAt = time.Now()
	return nil
}

// unlockBalance releases a reservation. Caller holds the mutex.
func (l *Ledger) unlockBalance(
	trader token.Address,
	id token.TokenID,
	amount uint64,
) {
	bal, ok := l.balances[balanceKey{trader: trader, token: id}]
	if !ok {
		return
	}
	if amount > bal.Locked {
		amount = bal.Locked
	}
	bal.Locked -= amount
	bal.UpdatedAt = time.Now()
}

// quoteValue computes amount*price/PriceScale with overflow protection.
func quoteValue(amount, price uint64) (uint64, error) {
	v := new(big.Int).Mul(
		new(big.Int).SetUint64(amount),
		new(big.Int).SetUint64(price),
	)
	v.Div(v, big.NewInt(PriceScale))
	if !v.IsUint64() {
		return 0, ErrValueOverflow
	}
	return v.Uint64(), nil
}

func (l *Ledger) publish(eventType event.EventType, data any) {
	if l.eventBus != nil {
		l.eventBus.Publish(eventType, event.New(eventType, data))
	}
}
