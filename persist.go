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
	"github.com/umbralabs-io/umbra/campaign"
	"github.com/umbralabs-io/umbra/database"
	"github.com/umbralabs-io/umbra/database/models"
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
	"github.com/umbralabs-io/umbra/trading"
	"github.com/umbralabs-io/umbra/vault"
)

// startPersistence subscribes snapshot writers to the engines' events.
// Snapshots are best effort: a failed write is logged and the next event
// for the same entity writes a fresh snapshot.
func (n *Node) startPersistence() {
	for _, eventType := range []event.EventType{
		vault.DepositEventType,
		vault.ReleaseEventType,
		vault.ReturnEventType,
		vault.LockEventType,
	} {
		n.eventBus.SubscribeFunc(eventType, n.handleVaultEvent)
	}
	n.eventBus.SubscribeFunc(trading.DepositEventType, n.handleTradingBalanceEvent)
	n.eventBus.SubscribeFunc(trading.WithdrawEventType, n.handleTradingBalanceEvent)
	n.eventBus.SubscribeFunc(trading.OrderPlacedEventType, n.handleOrderEvent)
	n.eventBus.SubscribeFunc(trading.OrderCancelledEventType, n.handleOrderEvent)
	n.eventBus.SubscribeFunc(trading.TradeEventType, n.handleTradeEvent)
	for _, eventType := range []event.EventType{
		campaign.LaunchedEventType,
		campaign.ComputeRequestedEventType,
		campaign.SettledEventType,
		campaign.CancelledEventType,
	} {
		n.eventBus.SubscribeFunc(eventType, n.handleCampaignEvent)
	}
	n.eventBus.SubscribeFunc(campaign.ContributedEventType, n.handleContributionEvent)
	n.eventBus.SubscribeFunc(campaign.ClaimedEventType, n.handleContributionEvent)
	n.eventBus.SubscribeFunc(campaign.ReclaimedEventType, n.handleContributionEvent)
}

func (n *Node) handleVaultEvent(evt event.Event) {
	var campaignID uint64
	switch data := evt.Data.(type) {
	case vault.DepositEvent:
		campaignID = data.CampaignID
	case vault.ReleaseEvent:
		campaignID = data.CampaignID
	case vault.ReturnEvent:
		campaignID = data.CampaignID
	case vault.LockEvent:
		campaignID = data.CampaignID
	default:
		return
	}
	n.persistVault(campaignID)
}

func (n *Node) persistVault(campaignID uint64) {
	v, err := n.vaults.GetVault(campaignID)
	if err != nil {
		return
	}
	err = n.db.SaveVault(&models.Vault{
		CampaignID:     v.CampaignID,
		Token:          string(v.Token),
		Depositor:      string(v.Depositor),
		TotalDeposited: v.TotalDeposited,
		TotalReleased:  v.TotalReleased,
		TotalReturned:  v.TotalReturned,
		Remaining:      v.Remaining,
		Locked:         v.Locked,
		CreatedAt:      v.CreatedAt,
	})
	if err != nil {
		n.config.logger.Error(
			"failed to persist vault",
			"component", "node",
			"campaign_id", campaignID,
			"error", err,
		)
	}
}

func (n *Node) handleTradingBalanceEvent(evt event.Event) {
	switch data := evt.Data.(type) {
	case trading.DepositEvent:
		n.persistTraderBalance(data.Trader, data.Token)
	case trading.WithdrawEvent:
		n.persistTraderBalance(data.Trader, data.Token)
	}
}

func (n *Node) persistTraderBalance(trader token.Address, id token.TokenID) {
	bal, ok := n.trading.GetTraderBalance(trader, id)
	if !ok {
		return
	}
	handle, err := n.sealCiphertext(bal.Balance)
	if err != nil {
		n.config.logger.Error(
			"failed to seal balance ciphertext",
			"component", "node",
			"error", err,
		)
		return
	}
	err = n.db.SaveTraderBalance(&models.TraderBalance{
		Trader:        string(trader),
		Token:         string(id),
		Locked:        bal.Locked,
		Deposited:     bal.TotalDeposited,
		Withdrawn:     bal.TotalWithdrawn,
		BalanceHandle: handle,
		UpdatedAt:     bal.UpdatedAt,
	})
	if err != nil {
		n.config.logger.Error(
			"failed to persist trader balance",
			"component", "node",
			"trader", trader,
			"error", err,
		)
	}
}

func (n *Node) handleOrderEvent(evt event.Event) {
	switch data := evt.Data.(type) {
	case trading.OrderPlacedEvent:
		n.persistOrder(data.OrderID)
		n.persistTraderBalance(data.Trader, data.BaseToken)
		n.persistTraderBalance(data.Trader, data.QuoteToken)
	case trading.OrderCancelledEvent:
		n.persistOrder(data.OrderID)
	}
}

func (n *Node) handleTradeEvent(evt event.Event) {
	data, ok := evt.Data.(trading.TradeEvent)
	if !ok {
		return
	}
	n.persistOrder(data.BuyOrderID)
	n.persistOrder(data.SellOrderID)
	for _, trader := range []token.Address{data.Buyer, data.Seller} {
		n.persistTraderBalance(trader, data.BaseToken)
		n.persistTraderBalance(trader, data.QuoteToken)
	}
}

func (n *Node) persistOrder(orderID uint64) {
	o, err := n.trading.GetOrder(orderID)
	if err != nil {
		return
	}
	amountHandle, err := n.sealCiphertext(o.EncAmount)
	if err == nil {
		var priceHandle, filledHandle []byte
		priceHandle, err = n.sealCiphertext(o.EncPrice)
		if err == nil {
			filledHandle, err = n.sealCiphertext(o.EncFilled)
		}
		if err == nil {
			err = n.db.SaveOrder(&models.Order{
				OrderID:         o.ID,
				Trader:          string(o.Trader),
				BaseToken:       string(o.BaseToken),
				QuoteToken:      string(o.QuoteToken),
				Side:            uint8(o.Side),
				Status:          uint8(o.Status),
				Amount:          o.Amount,
				Price:           o.Price,
				Filled:          o.Filled,
				EncAmountHandle: amountHandle,
				EncPriceHandle:  priceHandle,
				EncFilledHandle: filledHandle,
				CreatedAt:       o.CreatedAt,
				ExpiresAt:       o.ExpiresAt,
			})
		}
	}
	if err != nil {
		n.config.logger.Error(
			"failed to persist order",
			"component", "node",
			"order_id", orderID,
			"error", err,
		)
	}
}

func (n *Node) handleCampaignEvent(evt event.Event) {
	var campaignID uint64
	switch data := evt.Data.(type) {
	case campaign.LaunchedEvent:
		campaignID = data.CampaignID
	case campaign.ComputeRequestedEvent:
		campaignID = data.CampaignID
	case campaign.SettledEvent:
		campaignID = data.CampaignID
	case campaign.CancelledEvent:
		campaignID = data.CampaignID
	default:
		return
	}
	n.persistCampaign(campaignID)
	n.persistVault(campaignID)
}

func (n *Node) persistCampaign(campaignID uint64) {
	c, err := n.campaigns.GetCampaign(campaignID)
	if err != nil {
		return
	}
	totalHandle, err := n.sealCiphertext(c.EncTotal)
	if err != nil {
		n.config.logger.Error(
			"failed to seal campaign total ciphertext",
			"component", "node",
			"campaign_id", campaignID,
			"error", err,
		)
		return
	}
	err = n.db.SaveCampaign(&models.Campaign{
		CampaignID:     c.ID,
		Creator:        string(c.Creator),
		RewardToken:    string(c.RewardToken),
		TokenSupply:    c.TokenSupply,
		FundingGoal:    c.FundingGoal,
		PricePerToken:  c.PricePerToken,
		MinBid:         c.MinBid,
		MaxBid:         c.MaxBid,
		Live:           c.Live_,
		State:          uint8(c.State),
		ComputeState:   uint8(c.ComputeState),
		RevealedTotal:  c.RevealedTotal,
		Info:           c.Info,
		EncTotalHandle: totalHandle,
		LaunchTime:     c.LaunchTime,
		ClosingTime:    c.ClosingTime,
	})
	if err != nil {
		n.config.logger.Error(
			"failed to persist campaign",
			"component", "node",
			"campaign_id", campaignID,
			"error", err,
		)
	}
}

func (n *Node) handleContributionEvent(evt event.Event) {
	var campaignID uint64
	switch data := evt.Data.(type) {
	case campaign.ContributedEvent:
		campaignID = data.CampaignID
	case campaign.ClaimedEvent:
		campaignID = data.CampaignID
	case campaign.ReclaimedEvent:
		campaignID = data.CampaignID
	default:
		return
	}
	n.persistCampaign(campaignID)
	n.persistContributions(campaignID)
}

// persistContributions rewrites the full contribution set for a campaign.
// Contribution rows are small and per-campaign counts are bounded by the
// bid range, so replacing the set is simpler than tracking row identity
// across claim and reclaim updates.
func (n *Node) persistContributions(campaignID uint64) {
	contribs := n.campaigns.GetContributions(campaignID)
	rows := make([]*models.Contribution, 0, len(contribs))
	for _, c := range contribs {
		handle, err := n.sealCiphertext(c.EncAmount)
		if err != nil {
			n.config.logger.Error(
				"failed to seal contribution ciphertext",
				"component", "node",
				"campaign_id", campaignID,
				"error", err,
			)
			return
		}
		rows = append(rows, &models.Contribution{
			CampaignID:      campaignID,
			Contributor:     string(c.Contributor),
			Value:           c.Value,
			RewardsClaimed:  c.RewardsClaimed,
			FundsReclaimed:  c.FundsReclaimed,
			EncAmountHandle: handle,
			Timestamp:       c.Timestamp,
		})
	}
	txn := n.db.Transaction()
	err := txn.Do(func(t *database.Txn) error {
		result := t.Metadata().
			Where("campaign_id = ?", campaignID).
			Delete(&models.Contribution{})
		if result.Error != nil {
			return result.Error
		}
		for _, row := range rows {
			if result := t.Metadata().Create(row); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
	if err != nil {
		n.config.logger.Error(
			"failed to persist contributions",
			"component", "node",
			"campaign_id", campaignID,
			"error", err,
		)
	}
}

// sealCiphertext seals a ciphertext into the blob store and returns the
// handle reference for the metadata row. An invalid (zero) ciphertext
// yields a nil handle.
func (n *Node) sealCiphertext(ct fhe.Ciphertext) ([]byte, error) {
	if !ct.Valid() {
		return nil, nil
	}
	payload, err := n.scheme.Seal(ct)
	if err != nil {
		return nil, err
	}
	handle := ct.Handle()
	if err := n.db.SetCiphertext(handle[:], payload); err != nil {
		return nil, err
	}
	return handle[:], nil
}
