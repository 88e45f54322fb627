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

package campaign

import (
	"math/big"

	"github.com/umbralabs-io/umbra/token"
)

// rewardFor converts a contribution value into reward tokens:
// value * 1e18 / pricePerToken.
func rewardFor(value, pricePerToken uint64) uint64 {
	r := new(big.Int).Mul(new(big.Int).SetUint64(value), rewardScale)
	r.Div(r, new(big.Int).SetUint64(pricePerToken))
	if !r.IsUint64() {
		// Clamp rather than wrap; launch validation keeps realistic
		// price/value ranges well inside uint64.
		return ^uint64(0)
	}
	return r.Uint64()
}

// ClaimRewards pays out reward tokens for all of the caller's unclaimed
// contributions to a successful campaign. Each entry is marked claimed so a
// repeat call finds nothing; the vault release and the flag updates commit
// or fail together.
func (e *Engine) ClaimRewards(
	contributor token.Address,
	campaignID uint64,
) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.campaigns[campaignID]
	if !ok {
		return 0, ErrCampaignNotFound
	}
	if c.State != Successful {
		return 0, ErrNotSuccessful
	}
	var total uint64
	var pending []*Contribution
	for _, entry := range e.contributions[campaignID] {
		if entry.Contributor != contributor {
			continue
		}
		if entry.RewardsClaimed || entry.FundsReclaimed {
			continue
		}
		total += rewardFor(entry.Value, c.PricePerToken)
		pending = append(pending, entry)
	}
	if total == 0 {
		return 0, ErrNothingToClaim
	}
	if err := e.vaults.Release(
		e.engineAccount,
		c.RewardToken,
		contributor,
		total,
		campaignID,
	); err != nil {
		return 0, err
	}
	for _, entry := range pending {
		entry.RewardsClaimed = true
	}
	e.logger.Info(
		"rewards claimed",
		"component", "campaign",
		"campaign_id", campaignID,
		"contributor", string(contributor),
		"amount", total,
	)
	if e.metrics != nil {
		e.metrics.claims.Inc()
	}
	e.publish(ClaimedEventType, ClaimedEvent{
		CampaignID:  campaignID,
		Contributor: contributor,
		Amount:      total,
	})
	return total, nil
}

// ReclaimFunds refunds the caller's contributions to a failed campaign.
// Each entry is marked reclaimed so a repeat call finds nothing.
func (e *Engine) ReclaimFunds(
	contributor token.Address,
	campaignID uint64,
) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.campaigns[campaignID]
	if !ok {
		return 0, ErrCampaignNotFound
	}
	if c.State != Failed {
		return 0, ErrNotFailed
	}
	var total uint64
	var pending []*Contribution
	for _, entry := range e.contributions[campaignID] {
		if entry.Contributor != contributor {
			continue
		}
		if entry.RewardsClaimed || entry.FundsReclaimed {
			continue
		}
		total += entry.Value
		pending = append(pending, entry)
	}
	if total == 0 {
		return 0, ErrNothingToReclaim
	}
	if err := e.tokens.Pay(e.escrow, contributor, total); err != nil {
		return 0, err
	}
	for _, entry := range pending {
		entry.FundsReclaimed = true
	}
	e.logger.Info(
		"funds reclaimed",
		"component", "campaign",
		"campaign_id", campaignID,
		"contributor", string(contributor),
		"amount", total,
	)
	e.publish(ReclaimedEventType, ReclaimedEvent{
		CampaignID:  campaignID,
		Contributor: contributor,
		Amount:      total,
	})
	return total, nil
}
