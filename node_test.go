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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbralabs-io/umbra/campaign"
	"github.com/umbralabs-io/umbra/trading"
)

func startTestNode(t *testing.T) *Node {
	t.Helper()
	node, err := New(NewConfig(
		WithAdmin("admin"),
		WithFeeCollector("collector"),
		WithSupportedTokens("base-token", "quote-token"),
	))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- node.Run(ctx)
	}()
	select {
	case <-node.Ready():
	case err := <-errCh:
		t.Fatalf("node failed to start: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("node not ready in time")
	}
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
		require.NoError(t, node.Stop())
	})
	return node
}

func TestNodeCampaignLifecycle(t *testing.T) {
	node := startTestNode(t)
	tokens := node.Tokens()
	scheme := node.Scheme()
	engine := node.Campaigns()

	require.NoError(t, tokens.Register("reward-token"))
	require.NoError(t, tokens.Mint("reward-token", "creator", 1_000_000))
	require.NoError(t, tokens.Approve(
		"reward-token", "creator", node.Vaults().CustodyAccount(), 1_000_000,
	))
	require.NoError(t, tokens.MintNative("alice", 100))

	campaignID, err := engine.LaunchCampaign("creator", campaign.LaunchParams{
		RewardToken:   "reward-token",
		TokenSupply:   1_000_000,
		FundingGoal:   10,
		PricePerToken: 1_000_000_000_000_000_000,
		LaunchTime:    time.Now().Add(-time.Minute),
		ClosingTime:   time.Now().Add(time.Hour),
		MinBid:        1,
		MaxBid:        50,
		Info:          "test round",
	})
	require.NoError(t, err)

	encAmount, err := scheme.Encrypt(20)
	require.NoError(t, err)
	require.NoError(t, engine.ContributeSecretly("alice", campaignID, encAmount, 20))
	assert.Equal(t, uint64(80), tokens.NativeBalance("alice"))

	// Creator may settle before the closing time
	require.NoError(t, engine.ComputeCampaignTotals("creator", campaignID))
	require.Eventually(t, func() bool {
		c, err := engine.GetCampaign(campaignID)
		return err == nil && c.State == campaign.Successful
	}, 5*time.Second, 10*time.Millisecond)

	c, err := engine.GetCampaign(campaignID)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), c.RevealedTotal)

	claimed, err := engine.ClaimRewards("alice", campaignID)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), claimed)
	assert.Equal(t, claimed, tokens.BalanceOf("reward-token", "alice"))

	// Snapshots land asynchronously after settlement
	require.Eventually(t, func() bool {
		campaigns, err := node.db.Campaigns()
		return err == nil && len(campaigns) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNodeTradingFlow(t *testing.T) {
	node := startTestNode(t)
	tokens := node.Tokens()
	scheme := node.Scheme()
	ledger := node.Trading()

	require.NoError(t, tokens.Mint("base-token", "seller", 1000))
	require.NoError(t, tokens.Mint("quote-token", "buyer", 1000))
	custody := ledger.CustodyAccount()
	require.NoError(t, tokens.Approve("base-token", "seller", custody, 1000))
	require.NoError(t, tokens.Approve("quote-token", "buyer", custody, 1000))
	require.NoError(t, ledger.DepositTokens("seller", "base-token", 1000))
	require.NoError(t, ledger.DepositTokens("buyer", "quote-token", 1000))

	encAmount, err := scheme.Encrypt(100)
	require.NoError(t, err)
	encPrice, err := scheme.Encrypt(2 * trading.PriceScale)
	require.NoError(t, err)
	sellID, err := ledger.PlaceOrder(
		"seller", "base-token", "quote-token", trading.Sell,
		encAmount, encPrice, 100, 2*trading.PriceScale,
	)
	require.NoError(t, err)

	encAmount, err = scheme.Encrypt(100)
	require.NoError(t, err)
	encPrice, err = scheme.Encrypt(2 * trading.PriceScale)
	require.NoError(t, err)
	buyID, err := ledger.PlaceOrder(
		"buyer", "base-token", "quote-token", trading.Buy,
		encAmount, encPrice, 100, 2*trading.PriceScale,
	)
	require.NoError(t, err)

	sell, err := ledger.GetOrder(sellID)
	require.NoError(t, err)
	assert.Equal(t, trading.Filled, sell.Status)
	buy, err := ledger.GetOrder(buyID)
	require.NoError(t, err)
	assert.Equal(t, trading.Filled, buy.Status)

	// Order snapshots land asynchronously after the trade
	require.Eventually(t, func() bool {
		orders, err := node.db.Orders()
		return err == nil && len(orders) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
