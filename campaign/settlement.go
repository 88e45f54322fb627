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
	"time"

	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
)

// ComputeCampaignTotals starts the decryption of a campaign's hidden total.
// Anyone may call it after the closing time; the creator may call it early.
// The campaign moves to Processing and stays there until the oracle
// delivers the result; a second call while a request is outstanding fails.
func (e *Engine) ComputeCampaignTotals(
	caller token.Address,
	campaignID uint64,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computeTotalsLocked(caller, campaignID)
}

// computeTotalsLocked implements ComputeCampaignTotals. Caller holds the
// engine mutex.
func (e *Engine) computeTotalsLocked(
	caller token.Address,
	campaignID uint64,
) error {
	c, ok := e.campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	switch c.ComputeState {
	case Computing:
		return ErrComputeInProgress
	case ComputeFinished:
		return ErrComputeFinished
	}
	if c.State != Live {
		return ErrAlreadySettled
	}
	if time.Now().Before(c.ClosingTime) && caller != c.Creator {
		return ErrNotClosed
	}
	reqID, err := e.oracle.RequestDecryption(c.EncTotal, e.onComputed)
	if err != nil {
		return err
	}
	c.State = Processing
	c.ComputeState = Computing
	c.ComputeStart = time.Now()
	e.requestCampaign[reqID] = campaignID
	e.logger.Info(
		"campaign total computation requested",
		"component", "campaign",
		"campaign_id", campaignID,
		"request_id", uint64(reqID),
	)
	e.publish(ComputeRequestedEventType, ComputeRequestedEvent{
		CampaignID: campaignID,
		RequestID:  reqID,
	})
	return nil
}

// onComputed receives the revealed total from the oracle. The callback is
// keyed by request id; a result for an abandoned or unknown request is
// discarded. An invalid authenticity proof is fatal to the request: the
// result is never applied and the campaign stays in Processing until an
// administrator recovers it.
func (e *Engine) onComputed(res fhe.Result) {
	if !e.oracle.VerifyResult(res) {
		e.logger.Error(
			"decryption result failed proof verification, discarding",
			"component", "campaign",
			"request_id", uint64(res.RequestID),
		)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	campaignID, ok := e.requestCampaign[res.RequestID]
	if !ok {
		e.logger.Warn(
			"decryption result for unknown or abandoned request",
			"component", "campaign",
			"request_id", uint64(res.RequestID),
		)
		return
	}
	delete(e.requestCampaign, res.RequestID)
	c, ok := e.campaigns[campaignID]
	if !ok || c.ComputeState != Computing {
		return
	}
	c.ComputeState = ComputeFinished
	c.RevealedTotal = res.Plaintext
	c.Live_ = false
	if res.Plaintext >= c.FundingGoal {
		e.settleSuccess(c)
	} else {
		c.State = Failed
		e.logger.Info(
			"campaign failed",
			"component", "campaign",
			"campaign_id", c.ID,
			"raised", res.Plaintext,
			"goal", c.FundingGoal,
		)
	}
	if e.metrics != nil {
		e.metrics.liveCampaigns.Dec()
		e.metrics.revealedTotal.Add(float64(res.Plaintext))
	}
	e.publish(SettledEventType, SettledEvent{
		CampaignID: c.ID,
		State:      c.State,
		Raised:     c.RevealedTotal,
	})
}

// settleSuccess pays the service fee to the collector and the remainder to
// the creator from escrow. Caller holds the engine mutex.
func (e *Engine) settleSuccess(c *Campaign) {
	c.State = Successful
	serviceFee := c.RevealedTotal * e.feeRateBps / 10000
	if serviceFee > 0 {
		if err := e.tokens.Pay(e.escrow, e.feeCollector, serviceFee); err != nil {
			e.logger.Error(
				"service fee payout failed",
				"component", "campaign",
				"campaign_id", c.ID,
				"error", err,
			)
		}
	}
	if remainder := c.RevealedTotal - serviceFee; remainder > 0 {
		if err := e.tokens.Pay(e.escrow, c.Creator, remainder); err != nil {
			e.logger.Error(
				"creator payout failed",
				"component", "campaign",
				"campaign_id", c.ID,
				"error", err,
			)
		}
	}
	e.logger.Info(
		"campaign successful",
		"component", "campaign",
		"campaign_id", c.ID,
		"raised", c.RevealedTotal,
		"service_fee", serviceFee,
	)
}

// CancelCampaign aborts a live campaign and returns the reward token supply
// to the creator. Contributors of a cancelled campaign recover their funds
// via ReclaimFunds, which reads per-contribution flags independent of vault
// state.
func (e *Engine) CancelCampaign(caller token.Address, campaignID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if caller != c.Creator {
		return ErrCreatorOnly
	}
	if !c.Live_ || c.State == Successful {
		return ErrAlreadySettled
	}
	if err := e.vaults.Return(
		e.engineAccount,
		c.RewardToken,
		c.Creator,
		c.TokenSupply,
		campaignID,
	); err != nil {
		return err
	}
	// Abandon any in-flight decryption; a late result will not find its
	// request mapping and is discarded.
	for reqID, id := range e.requestCampaign {
		if id == campaignID {
			delete(e.requestCampaign, reqID)
		}
	}
	c.State = Failed
	c.Live_ = false
	c.ComputeState = ComputeFinished
	e.logger.Info(
		"campaign cancelled",
		"component", "campaign",
		"campaign_id", campaignID,
	)
	if e.metrics != nil {
		e.metrics.liveCampaigns.Dec()
	}
	e.publish(CancelledEventType, CancelledEvent{CampaignID: campaignID})
	return nil
}

// EmergencyTerminateCampaign forces the closing time to now and immediately
// starts the total computation. Administrator only.
func (e *Engine) EmergencyTerminateCampaign(
	caller token.Address,
	campaignID uint64,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrAdminOnly
	}
	c, ok := e.campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	// Move the closing time so the compute call accepts a non-creator
	// caller, restoring it if the call rejects so a failed termination
	// leaves the campaign untouched.
	prevClosing := c.ClosingTime
	c.ClosingTime = time.Now()
	if err := e.computeTotalsLocked(caller, campaignID); err != nil {
		c.ClosingTime = prevClosing
		return err
	}
	e.logger.Warn(
		"campaign emergency terminated",
		"component", "campaign",
		"campaign_id", campaignID,
	)
	return nil
}

// RecoverStalledComputation reverts a campaign whose decryption request has
// been outstanding longer than the compute timeout, allowing the totals to
// be recomputed. Administrator only.
func (e *Engine) RecoverStalledComputation(
	caller token.Address,
	campaignID uint64,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.admin {
		return ErrAdminOnly
	}
	c, ok := e.campaigns[campaignID]
	if !ok {
		return ErrCampaignNotFound
	}
	if c.State != Processing || c.ComputeState != Computing {
		return ErrComputeNotStalled
	}
	if time.Since(c.ComputeStart) < e.computeTimeout {
		return ErrComputeNotStalled
	}
	for reqID, id := range e.requestCampaign {
		if id == campaignID {
			delete(e.requestCampaign, reqID)
		}
	}
	c.State = Live
	c.ComputeState = ComputeIdle
	e.logger.Warn(
		"stalled total computation recovered",
		"component", "campaign",
		"campaign_id", campaignID,
	)
	return nil
}
