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

package campaign_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbralabs-io/umbra/campaign"
	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
	"github.com/umbralabs-io/umbra/vault"
)

const (
	admin     = token.Address("admin")
	collector = token.Address("collector")
	creator   = token.Address("creator")
	rewardTok = token.TokenID("reward-token")
)

type testEngine struct {
	engine *campaign.Engine
	vaults *vault.Manager
	tokens *token.Registry
	scheme *fhe.Scheme
	oracle *fhe.Oracle
}

func newTestEngine(t *testing.T, opts ...func(*campaign.EngineConfig)) *testEngine {
	t.Helper()
	tokens := token.NewRegistry(nil)
	require.NoError(t, tokens.Register(rewardTok))
	require.NoError(t, tokens.Mint(rewardTok, creator, 1_000_000))
	scheme, err := fhe.NewScheme()
	require.NoError(t, err)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	t.Cleanup(oracle.Stop)
	vaults, err := vault.NewManager(vault.ManagerConfig{
		Tokens: tokens,
		Admin:  admin,
	})
	require.NoError(t, err)
	require.NoError(t, tokens.Approve(
		rewardTok, creator, vaults.CustodyAccount(), 1_000_000,
	))
	cfg := campaign.EngineConfig{
		Tokens:       tokens,
		Scheme:       scheme,
		Oracle:       oracle,
		Vaults:       vaults,
		Admin:        admin,
		FeeCollector: collector,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := campaign.NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, vaults.AuthorizeCaller(admin, engine.EngineAccount()))
	return &testEngine{
		engine: engine,
		vaults: vaults,
		tokens: tokens,
		scheme: scheme,
		oracle: oracle,
	}
}

func defaultParams() campaign.LaunchParams {
	return campaign.LaunchParams{
		RewardToken:   rewardTok,
		TokenSupply:   100_000,
		FundingGoal:   1000,
		PricePerToken: 1_000_000_000_000_000_000,
		LaunchTime:    time.Now().Add(-time.Minute),
		ClosingTime:   time.Now().Add(time.Hour),
		MinBid:        10,
		MaxBid:        10_000,
		Info:          "test round",
	}
}

func (te *testEngine) contribute(
	t *testing.T,
	contributor token.Address,
	campaignID, value uint64,
) {
	t.Helper()
	require.NoError(t, te.tokens.MintNative(contributor, value))
	enc, err := te.scheme.Encrypt(value)
	require.NoError(t, err)
	require.NoError(
		t,
		te.engine.ContributeSecretly(contributor, campaignID, enc, value),
	)
}

func (te *testEngine) settle(t *testing.T, campaignID uint64) campaign.Campaign {
	t.Helper()
	require.NoError(t, te.engine.ComputeCampaignTotals(creator, campaignID))
	require.Eventually(t, func() bool {
		c, err := te.engine.GetCampaign(campaignID)
		return err == nil && c.ComputeState == campaign.ComputeFinished
	}, 5*time.Second, time.Millisecond)
	c, err := te.engine.GetCampaign(campaignID)
	require.NoError(t, err)
	return c
}

func TestLaunchValidation(t *testing.T) {
	te := newTestEngine(t)
	params := defaultParams()
	params.TokenSupply = 0
	_, err := te.engine.LaunchCampaign(creator, params)
	assert.ErrorIs(t, err, campaign.ErrInvalidParams)

	params = defaultParams()
	params.MaxBid = params.MinBid - 1
	_, err = te.engine.LaunchCampaign(creator, params)
	assert.ErrorIs(t, err, campaign.ErrInvalidParams)

	params = defaultParams()
	params.ClosingTime = params.LaunchTime.Add(-time.Hour)
	_, err = te.engine.LaunchCampaign(creator, params)
	assert.ErrorIs(t, err, campaign.ErrInvalidParams)
}

func TestLaunchDepositsSupply(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	balance, err := te.vaults.GetVaultBalance(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), balance)

	live := te.engine.GetLiveCampaigns()
	require.Len(t, live, 1)
	assert.Equal(t, id, live[0].ID)
	assert.Equal(t, campaign.Live, live[0].State)

	// Encrypted total starts at zero
	assert.NoError(t, te.scheme.Verify(live[0].EncTotal, 0))
}

func TestContributeDualSubmissionMismatch(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)

	require.NoError(t, te.tokens.MintNative("alice", 100))
	enc, err := te.scheme.Encrypt(50)
	require.NoError(t, err)
	err = te.engine.ContributeSecretly("alice", id, enc, 100)
	assert.ErrorIs(t, err, fhe.ErrValueMismatch)
	// Value untouched after the rejection
	assert.Equal(t, uint64(100), te.tokens.NativeBalance("alice"))
}

func TestContributeMovesValueToEscrow(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)

	te.contribute(t, "alice", id, 500)
	assert.Zero(t, te.tokens.NativeBalance("alice"))
	assert.Equal(
		t,
		uint64(500),
		te.tokens.NativeBalance(te.engine.EscrowAccount()),
	)

	contribs := te.engine.GetContributions(id)
	require.Len(t, contribs, 1)
	assert.Equal(t, token.Address("alice"), contribs[0].Contributor)
	assert.Equal(t, uint64(500), contribs[0].Value)
	assert.NoError(t, te.scheme.Verify(contribs[0].EncAmount, 500))

	assert.Equal(t, []uint64{id}, te.engine.GetUserCampaigns("alice"))
}

func TestContributeBidLimits(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)

	require.NoError(t, te.tokens.MintNative("alice", 50_000))
	enc, err := te.scheme.Encrypt(5)
	require.NoError(t, err)
	err = te.engine.ContributeSecretly("alice", id, enc, 5)
	assert.ErrorIs(t, err, campaign.ErrBidOutOfRange)

	enc, err = te.scheme.Encrypt(10_001)
	require.NoError(t, err)
	err = te.engine.ContributeSecretly("alice", id, enc, 10_001)
	assert.ErrorIs(t, err, campaign.ErrBidOutOfRange)

	// Cumulative contributions cannot exceed the max bid
	te.contribute(t, "alice", id, 9_000)
	enc, err = te.scheme.Encrypt(2_000)
	require.NoError(t, err)
	err = te.engine.ContributeSecretly("alice", id, enc, 2_000)
	assert.ErrorIs(t, err, campaign.ErrBidLimitExceeded)
}

func TestContributeOutsideWindow(t *testing.T) {
	te := newTestEngine(t)
	params := defaultParams()
	params.LaunchTime = time.Now().Add(time.Hour)
	params.ClosingTime = time.Now().Add(2 * time.Hour)
	id, err := te.engine.LaunchCampaign(creator, params)
	require.NoError(t, err)

	require.NoError(t, te.tokens.MintNative("alice", 100))
	enc, err := te.scheme.Encrypt(100)
	require.NoError(t, err)
	err = te.engine.ContributeSecretly("alice", id, enc, 100)
	assert.ErrorIs(t, err, campaign.ErrOutsideWindow)
}

func TestSuccessfulSettlementAndClaims(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)

	te.contribute(t, "alice", id, 2_000)
	te.contribute(t, "bob", id, 1_000)

	c := te.settle(t, id)
	assert.Equal(t, campaign.Successful, c.State)
	assert.Equal(t, uint64(3_000), c.RevealedTotal)

	// Default service fee is 50bps: 3000 * 50 / 10000 = 15
	assert.Equal(t, uint64(15), te.tokens.NativeBalance(collector))
	assert.Equal(t, uint64(2_985), te.tokens.NativeBalance(creator))

	// Rewards: value * 1e18 / price with price 1e18, so 1:1
	claimed, err := te.engine.ClaimRewards("alice", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000), claimed)
	assert.Equal(t, uint64(2_000), te.tokens.BalanceOf(rewardTok, "alice"))

	// Double claim fails
	_, err = te.engine.ClaimRewards("alice", id)
	assert.ErrorIs(t, err, campaign.ErrNothingToClaim)

	// Reclaiming from a successful campaign fails
	_, err = te.engine.ReclaimFunds("alice", id)
	assert.ErrorIs(t, err, campaign.ErrNotFailed)
}

func TestFailedSettlementAndReclaims(t *testing.T) {
	te := newTestEngine(t)
	params := defaultParams()
	params.FundingGoal = 5_000
	id, err := te.engine.LaunchCampaign(creator, params)
	require.NoError(t, err)

	te.contribute(t, "alice", id, 2_000)

	c := te.settle(t, id)
	assert.Equal(t, campaign.Failed, c.State)
	assert.Equal(t, uint64(2_000), c.RevealedTotal)

	// No payouts on failure
	assert.Zero(t, te.tokens.NativeBalance(collector))
	assert.Zero(t, te.tokens.NativeBalance(creator))

	// Claims are rejected, reclaims return the contributed value once
	_, err = te.engine.ClaimRewards("alice", id)
	assert.ErrorIs(t, err, campaign.ErrNotSuccessful)

	reclaimed, err := te.engine.ReclaimFunds("alice", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000), reclaimed)
	assert.Equal(t, uint64(2_000), te.tokens.NativeBalance("alice"))

	_, err = te.engine.ReclaimFunds("alice", id)
	assert.ErrorIs(t, err, campaign.ErrNothingToReclaim)
}

func TestComputeGuards(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)
	te.contribute(t, "alice", id, 2_000)

	// Only the creator may settle before the closing time
	err = te.engine.ComputeCampaignTotals("alice", id)
	assert.ErrorIs(t, err, campaign.ErrNotClosed)

	c := te.settle(t, id)
	require.Equal(t, campaign.Successful, c.State)

	// Totals cannot be recomputed after settlement
	err = te.engine.ComputeCampaignTotals(creator, id)
	assert.ErrorIs(t, err, campaign.ErrComputeFinished)
}

func TestCancelCampaign(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)
	te.contribute(t, "alice", id, 500)

	assert.ErrorIs(
		t,
		te.engine.CancelCampaign("alice", id),
		campaign.ErrCreatorOnly,
	)
	require.NoError(t, te.engine.CancelCampaign(creator, id))

	c, err := te.engine.GetCampaign(id)
	require.NoError(t, err)
	assert.Equal(t, campaign.Failed, c.State)
	assert.False(t, c.Live_)

	// Reward supply went back to the creator
	assert.Equal(t, uint64(1_000_000), te.tokens.BalanceOf(rewardTok, creator))

	// Contributors reclaim their value
	reclaimed, err := te.engine.ReclaimFunds("alice", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), reclaimed)
}

func TestEmergencyTerminate(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)
	te.contribute(t, "alice", id, 2_000)

	assert.ErrorIs(
		t,
		te.engine.EmergencyTerminateCampaign(creator, id),
		campaign.ErrAdminOnly,
	)
	require.NoError(t, te.engine.EmergencyTerminateCampaign(admin, id))
	require.Eventually(t, func() bool {
		c, err := te.engine.GetCampaign(id)
		return err == nil && c.State == campaign.Successful
	}, 5*time.Second, time.Millisecond)
}

// A rejected emergency termination leaves the campaign untouched, closing
// time included.
func TestEmergencyTerminateRejectedLeavesClosingTime(t *testing.T) {
	te := newTestEngine(t)
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)
	te.contribute(t, "alice", id, 2_000)
	c := te.settle(t, id)
	require.Equal(t, campaign.Successful, c.State)

	err = te.engine.EmergencyTerminateCampaign(admin, id)
	require.ErrorIs(t, err, campaign.ErrComputeFinished)
	after, err := te.engine.GetCampaign(id)
	require.NoError(t, err)
	assert.Equal(t, c.ClosingTime, after.ClosingTime)
}

// A stalled computation is recovered by the administrator, and the late
// oracle result for the abandoned request is discarded.
func TestRecoverStalledComputation(t *testing.T) {
	te := newTestEngine(t, func(cfg *campaign.EngineConfig) {
		cfg.ComputeTimeout = time.Millisecond
	})
	id, err := te.engine.LaunchCampaign(creator, defaultParams())
	require.NoError(t, err)
	te.contribute(t, "alice", id, 2_000)

	// Occupy the oracle's delivery worker so the campaign's decryption
	// request stays queued
	blocker, err := te.scheme.Encrypt(0)
	require.NoError(t, err)
	release := make(chan struct{})
	_, err = te.oracle.RequestDecryption(blocker, func(fhe.Result) {
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, te.engine.ComputeCampaignTotals(creator, id))
	c, err := te.engine.GetCampaign(id)
	require.NoError(t, err)
	assert.Equal(t, campaign.Processing, c.State)
	assert.Equal(t, campaign.Computing, c.ComputeState)

	time.Sleep(10 * time.Millisecond)
	assert.ErrorIs(
		t,
		te.engine.RecoverStalledComputation(creator, id),
		campaign.ErrAdminOnly,
	)
	require.NoError(t, te.engine.RecoverStalledComputation(admin, id))

	c, err = te.engine.GetCampaign(id)
	require.NoError(t, err)
	assert.Equal(t, campaign.Live, c.State)
	assert.Equal(t, campaign.ComputeIdle, c.ComputeState)

	// Release the worker; the abandoned result must not settle anything
	close(release)
	time.Sleep(50 * time.Millisecond)
	c, err = te.engine.GetCampaign(id)
	require.NoError(t, err)
	assert.Equal(t, campaign.Live, c.State)

	// The campaign can settle normally afterwards
	c = te.settle(t, id)
	assert.Equal(t, campaign.Successful, c.State)
}

func TestUpdateServiceFeeRate(t *testing.T) {
	te := newTestEngine(t)
	assert.ErrorIs(
		t,
		te.engine.UpdateServiceFeeRate(creator, 10),
		campaign.ErrAdminOnly,
	)
	assert.ErrorIs(
		t,
		te.engine.UpdateServiceFeeRate(admin, campaign.MaxServiceFeeRateBps+1),
		campaign.ErrFeeRateTooHigh,
	)
	require.NoError(t, te.engine.UpdateServiceFeeRate(admin, 100))

	assert.ErrorIs(
		t,
		te.engine.UpdateFeeCollector(creator, "new"),
		campaign.ErrAdminOnly,
	)
	require.NoError(t, te.engine.UpdateFeeCollector(admin, "new"))
}
