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

// Package vault implements per-campaign custody of reward tokens. Each vault
// tracks deposited, released and returned totals and maintains the
// conservation invariant deposited == released + returned + remaining at all
// times. A locked vault refuses returns until the lock duration elapses or
// an administrator performs an emergency unlock.
package vault

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/token"
)

// DefaultLockDuration is the minimum vault age before a non-emergency
// unlock is accepted.
const DefaultLockDuration = 30 * 24 * time.Hour

var (
	ErrVaultExists     = errors.New("vault already exists for campaign")
	ErrVaultNotFound   = errors.New("vault not found")
	ErrTokenMismatch   = errors.New("token does not match vault")
	ErrDepositorOnly   = errors.New("not the vault depositor")
	ErrExceedsBalance  = errors.New("amount exceeds remaining balance")
	ErrVaultLocked     = errors.New("vault is locked")
	ErrAlreadyLocked   = errors.New("vault already locked")
	ErrNotLocked       = errors.New("vault is not locked")
	ErrLockNotExpired  = errors.New("lock duration has not elapsed")
	ErrNotAuthorized   = errors.New("caller not authorized")
	ErrAdminOnly       = errors.New("administrator only")
	ErrZeroAmount      = errors.New("zero amount")
	ErrZeroAddress     = errors.New("zero address")
)

// Vault is the custody record for a single campaign.
type Vault struct {
	CampaignID     uint64
	Token          token.TokenID
	Depositor      token.Address
	TotalDeposited uint64
	TotalReleased  uint64
	TotalReturned  uint64
	Remaining      uint64
	Locked         bool
	CreatedAt      time.Time
}

// ManagerConfig configures a vault Manager. Admin is the explicit
// administrator capability; there is no ambient owner.
type ManagerConfig struct {
	Logger       *slog.Logger
	EventBus     *event.Bus
	PromRegistry prometheus.Registerer
	Tokens       *token.Registry
	Admin        token.Address
	// CustodyAccount is the registry account holding vault funds.
	CustodyAccount token.Address
	// LockDuration overrides DefaultLockDuration when non-zero.
	LockDuration time.Duration
}

// Manager owns all vault records. All mutations for all vaults are
// serialized under a single mutex; vaults are small records and custody
// operations are infrequent relative to trading.
type Manager struct {
	logger          *slog.Logger
	eventBus        *event.Bus
	tokens          *token.Registry
	metrics         *managerMetrics
	vaults          map[uint64]*Vault
	depositorVaults map[token.Address][]uint64
	authorized      map[token.Address]bool
	admin           token.Address
	custody         token.Address
	lockDuration    time.Duration
	mu              sync.RWMutex
}

// NewManager creates a vault Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("no token registry provided")
	}
	if cfg.Admin == "" {
		return nil, errors.New("no administrator address provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.CustodyAccount == "" {
		cfg.CustodyAccount = "vault-custody"
	}
	if cfg.LockDuration == 0 {
		cfg.LockDuration = DefaultLockDuration
	}
	m := &Manager{
		logger:          cfg.Logger,
		eventBus:        cfg.EventBus,
		tokens:          cfg.Tokens,
		vaults:          make(map[uint64]*Vault),
		depositorVaults: make(map[token.Address][]uint64),
		authorized:      make(map[token.Address]bool),
		admin:           cfg.Admin,
		custody:         cfg.CustodyAccount,
		lockDuration:    cfg.LockDuration,
	}
	if cfg.PromRegistry != nil {
		m.metrics = newManagerMetrics(cfg.PromRegistry)
	}
	return m, nil
}

// CustodyAccount returns the registry account holding vault funds.
func (m *Manager) CustodyAccount() token.Address {
	return m.custody
}

func (m *Manager) isAuthorized(caller token.Address) bool {
	return caller == m.admin || m.authorized[caller]
}

// AuthorizeCaller grants an address permission to operate vaults.
// Administrator only.
func (m *Manager) AuthorizeCaller(caller, addr token.Address) error {
	if addr == "" {
		return ErrZeroAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return ErrAdminOnly
	}
	m.authorized[addr] = true
	return nil
}

// DeauthorizeCaller revokes vault permission. Administrator only.
func (m *Manager) DeauthorizeCaller(caller, addr token.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return ErrAdminOnly
	}
	delete(m.authorized, addr)
	return nil
}

// Deposit creates the vault for a campaign and takes custody of the deposit.
// The depositor must have approved the custody account as spender.
func (m *Manager) Deposit(
	caller token.Address,
	tokenID token.TokenID,
	depositor token.Address,
	amount uint64,
	campaignID uint64,
) error {
	if depositor == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAuthorized(caller) {
		return ErrNotAuthorized
	}
	if _, ok := m.vaults[campaignID]; ok {
		return ErrVaultExists
	}
	if err := m.tokens.TransferFrom(
		tokenID, m.custody, depositor, m.custody, amount,
	); err != nil {
		return err
	}
	v := &Vault{
		CampaignID:     campaignID,
		Token:          tokenID,
		Depositor:      depositor,
		TotalDeposited: amount,
		Remaining:      amount,
		CreatedAt:      time.Now(),
	}
	m.vaults[campaignID] = v
	m.depositorVaults[depositor] = append(
		m.depositorVaults[depositor],
		campaignID,
	)
	m.logger.Info(
		"vault deposit",
		"component", "vault",
		"campaign_id", campaignID,
		"token", string(tokenID),
		"amount", amount,
	)
	if m.metrics != nil {
		m.metrics.vaults.Inc()
		m.metrics.deposited.Add(float64(amount))
	}
	m.publish(DepositEventType, DepositEvent{
		CampaignID: campaignID,
		Token:      tokenID,
		Depositor:  depositor,
		Amount:     amount,
	})
	return nil
}

// Release pays out from the vault's remaining balance. Release is the
// winning-path operation and is valid regardless of lock state.
func (m *Manager) Release(
	caller token.Address,
	tokenID token.TokenID,
	recipient token.Address,
	amount uint64,
	campaignID uint64,
) error {
	if recipient == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAuthorized(caller) {
		return ErrNotAuthorized
	}
	v, ok := m.vaults[campaignID]
	if !ok {
		return ErrVaultNotFound
	}
	if v.Token != tokenID {
		return ErrTokenMismatch
	}
	if amount > v.Remaining {
		return ErrExceedsBalance
	}
	if err := m.tokens.Transfer(tokenID, m.custody, recipient, amount); err != nil {
		return err
	}
	v.Remaining -= amount
	v.TotalReleased += amount
	m.logger.Info(
		"vault release",
		"component", "vault",
		"campaign_id", campaignID,
		"recipient", string(recipient),
		"amount", amount,
	)
	if m.metrics != nil {
		m.metrics.released.Add(float64(amount))
	}
	m.publish(ReleaseEventType, ReleaseEvent{
		CampaignID: campaignID,
		Token:      tokenID,
		Recipient:  recipient,
		Amount:     amount,
	})
	return nil
}

// Return sends funds back to the original depositor. Fails while the vault
// is locked.
func (m *Manager) Return(
	caller token.Address,
	tokenID token.TokenID,
	depositor token.Address,
	amount uint64,
	campaignID uint64,
) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAuthorized(caller) {
		return ErrNotAuthorized
	}
	v, ok := m.vaults[campaignID]
	if !ok {
		return ErrVaultNotFound
	}
	if v.Token != tokenID {
		return ErrTokenMismatch
	}
	if v.Depositor != depositor {
		return ErrDepositorOnly
	}
	if v.Locked {
		return ErrVaultLocked
	}
	if amount > v.Remaining {
		return ErrExceedsBalance
	}
	if err := m.tokens.Transfer(tokenID, m.custody, depositor, amount); err != nil {
		return err
	}
	v.Remaining -= amount
	v.TotalReturned += amount
	m.logger.Info(
		"vault return",
		"component", "vault",
		"campaign_id", campaignID,
		"depositor", string(depositor),
		"amount", amount,
	)
	m.publish(ReturnEventType, ReturnEvent{
		CampaignID: campaignID,
		Token:      tokenID,
		Depositor:  depositor,
		Amount:     amount,
	})
	return nil
}

// Lock locks a vault against returns. Fails if already locked.
func (m *Manager) Lock(caller token.Address, campaignID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAuthorized(caller) {
		return ErrNotAuthorized
	}
	v, ok := m.vaults[campaignID]
	if !ok {
		return ErrVaultNotFound
	}
	if v.Locked {
		return ErrAlreadyLocked
	}
	v.Locked = true
	m.publish(LockEventType, LockEvent{CampaignID: campaignID, Locked: true})
	return nil
}

// Unlock unlocks a vault once the lock duration has elapsed since creation.
func (m *Manager) Unlock(caller token.Address, campaignID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isAuthorized(caller) {
		return ErrNotAuthorized
	}
	v, ok := m.vaults[campaignID]
	if !ok {
		return ErrVaultNotFound
	}
	if !v.Locked {
		return ErrNotLocked
	}
	if time.Since(v.CreatedAt) < m.lockDuration {
		return ErrLockNotExpired
	}
	v.Locked = false
	m.publish(LockEventType, LockEvent{CampaignID: campaignID, Locked: false})
	return nil
}

// EmergencyUnlock unlocks a vault regardless of its age. Administrator only.
func (m *Manager) EmergencyUnlock(caller token.Address, campaignID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return ErrAdminOnly
	}
	v, ok := m.vaults[campaignID]
	if !ok {
		return ErrVaultNotFound
	}
	if !v.Locked {
		return ErrNotLocked
	}
	v.Locked = false
	m.logger.Warn(
		"emergency vault unlock",
		"component", "vault",
		"campaign_id", campaignID,
	)
	m.publish(LockEventType, LockEvent{CampaignID: campaignID, Locked: false})
	return nil
}

// EmergencyRecover sweeps tokens directly out of custody, bypassing vault
// bookkeeping. It is a deliberate escape hatch and is not reconciled against
// remaining balances. Administrator only.
func (m *Manager) EmergencyRecover(
	caller token.Address,
	tokenID token.TokenID,
	recipient token.Address,
	amount uint64,
) error {
	if recipient == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.admin {
		return ErrAdminOnly
	}
	if err := m.tokens.Transfer(tokenID, m.custody, recipient, amount); err != nil {
		return err
	}
	m.logger.Warn(
		"emergency fund recovery",
		"component", "vault",
		"token", string(tokenID),
		"recipient", string(recipient),
		"amount", amount,
	)
	return nil
}

// GetVault returns a copy of the vault record for a campaign.
func (m *Manager) GetVault(campaignID uint64) (Vault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vaults[campaignID]
	if !ok {
		return Vault{}, ErrVaultNotFound
	}
	return *v, nil
}

// GetVaultBalance returns the remaining balance for a campaign's vault.
func (m *Manager) GetVaultBalance(campaignID uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vaults[campaignID]
	if !ok {
		return 0, ErrVaultNotFound
	}
	return v.Remaining, nil
}

// GetDepositorVaults returns the campaign ids of vaults created by a
// depositor.
func (m *Manager) GetDepositorVaults(depositor token.Address) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.depositorVaults[depositor])
}

func (m *Manager) publish(eventType event.EventType, data any) {
	if m.eventBus != nil {
		m.eventBus.Publish(eventType, event.New(eventType, data))
	}
}
