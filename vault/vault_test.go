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

package vault_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbralabs-io/umbra/token"
	"github.com/umbralabs-io/umbra/vault"
)

const (
	admin     = token.Address("admin")
	depositor = token.Address("creator")
	engine    = token.Address("engine")
	rewardTok = token.TokenID("reward-token")
)

func newTestManager(t *testing.T, opts ...func(*vault.ManagerConfig)) (*vault.Manager, *token.Registry) {
	t.Helper()
	tokens := token.NewRegistry(nil)
	require.NoError(t, tokens.Register(rewardTok))
	require.NoError(t, tokens.Mint(rewardTok, depositor, 10_000))
	cfg := vault.ManagerConfig{
		Tokens: tokens,
		Admin:  admin,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	mgr, err := vault.NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, tokens.Approve(
		rewardTok, depositor, mgr.CustodyAccount(), 10_000,
	))
	require.NoError(t, mgr.AuthorizeCaller(admin, engine))
	return mgr, tokens
}

func TestDepositReleaseReturn(t *testing.T) {
	mgr, tokens := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 1000, 7))
	assert.Equal(t, uint64(9000), tokens.BalanceOf(rewardTok, depositor))
	assert.Equal(t, uint64(1000), tokens.BalanceOf(rewardTok, mgr.CustodyAccount()))

	balance, err := mgr.GetVaultBalance(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)

	require.NoError(t, mgr.Release(engine, rewardTok, "backer", 400, 7))
	assert.Equal(t, uint64(400), tokens.BalanceOf(rewardTok, "backer"))

	require.NoError(t, mgr.Return(engine, rewardTok, depositor, 100, 7))
	assert.Equal(t, uint64(9100), tokens.BalanceOf(rewardTok, depositor))

	balance, err = mgr.GetVaultBalance(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), balance)

	// Conservation: deposited = released + returned + remaining
	v, err := mgr.GetVault(7)
	require.NoError(t, err)
	assert.Equal(
		t,
		v.TotalDeposited,
		v.TotalReleased+v.TotalReturned+v.Remaining,
	)

	// Cannot return more than remains
	assert.ErrorIs(
		t,
		mgr.Return(engine, rewardTok, depositor, 600, 7),
		vault.ErrExceedsBalance,
	)
}

func TestDepositRejectsDuplicateCampaign(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))
	assert.ErrorIs(
		t,
		mgr.Deposit(engine, rewardTok, depositor, 100, 1),
		vault.ErrVaultExists,
	)
}

func TestDepositRequiresAuthorization(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Deposit("stranger", rewardTok, depositor, 100, 1)
	assert.ErrorIs(t, err, vault.ErrNotAuthorized)
}

func TestReturnDepositorOnly(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))
	err := mgr.Return(engine, rewardTok, "stranger", 50, 1)
	assert.ErrorIs(t, err, vault.ErrDepositorOnly)
}

func TestLockBlocksReturns(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))
	require.NoError(t, mgr.Lock(engine, 1))
	assert.ErrorIs(t, mgr.Lock(engine, 1), vault.ErrAlreadyLocked)

	// Returns are blocked while locked, releases are not
	err := mgr.Return(engine, rewardTok, depositor, 10, 1)
	assert.ErrorIs(t, err, vault.ErrVaultLocked)
	assert.NoError(t, mgr.Release(engine, rewardTok, "backer", 10, 1))

	// Lock duration has not elapsed
	assert.ErrorIs(t, mgr.Unlock(engine, 1), vault.ErrLockNotExpired)
}

func TestUnlockAfterDuration(t *testing.T) {
	mgr, _ := newTestManager(t, func(cfg *vault.ManagerConfig) {
		cfg.LockDuration = time.Millisecond
	})
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))
	require.NoError(t, mgr.Lock(engine, 1))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, mgr.Unlock(engine, 1))
	assert.NoError(t, mgr.Return(engine, rewardTok, depositor, 10, 1))
}

func TestEmergencyUnlockAdminOnly(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))
	require.NoError(t, mgr.Lock(engine, 1))

	assert.ErrorIs(t, mgr.EmergencyUnlock(engine, 1), vault.ErrAdminOnly)
	require.NoError(t, mgr.EmergencyUnlock(admin, 1))
	assert.NoError(t, mgr.Return(engine, rewardTok, depositor, 10, 1))
}

func TestEmergencyRecoverBypassesBookkeeping(t *testing.T) {
	mgr, tokens := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))

	assert.ErrorIs(
		t,
		mgr.EmergencyRecover(engine, rewardTok, "treasury", 50),
		vault.ErrAdminOnly,
	)
	require.NoError(t, mgr.EmergencyRecover(admin, rewardTok, "treasury", 50))
	assert.Equal(t, uint64(50), tokens.BalanceOf(rewardTok, "treasury"))

	// Vault bookkeeping is untouched
	v, err := mgr.GetVault(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v.Remaining)
}

func TestGetDepositorVaults(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 1))
	require.NoError(t, mgr.Deposit(engine, rewardTok, depositor, 100, 2))
	assert.Equal(t, []uint64{1, 2}, mgr.GetDepositorVaults(depositor))
	assert.Empty(t, mgr.GetDepositorVaults("stranger"))
}

func TestDeauthorizeCaller(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.DeauthorizeCaller(admin, engine))
	err := mgr.Deposit(engine, rewardTok, depositor, 100, 1)
	assert.ErrorIs(t, err, vault.ErrNotAuthorized)
}
