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

package trading

import (
	"time"
)

// matchOrder scans the full book in order-id ascending order and executes
// against the first compatible counterparty, repeating until the new order
// is filled or the scan is exhausted.
//
// This is deliberately NOT price-priority matching: a later order with a
// worse price can match before an earlier order with a better price if it
// is scanned first. The scan-order rule is part of the venue's observable
// behavior and is pinned by tests; do not silently replace it with a
// price-ordered book.
//
// Caller holds the ledger mutex.
func (l *Ledger) matchOrder(order *Order) error {
	now := time.Now()
	for id := uint64(1); id < l.nextOrderID; id++ {
		if id == order.ID {
			continue
		}
		counter, ok := l.orders[id]
		if !ok {
			continue
		}
		if !canMatch(order, counter, now) {
			continue
		}
		if err := l.executeMatch(order, counter); err != nil {
			return err
		}
		if order.Status == Filled {
			break
		}
	}
	return nil
}

// canMatch reports whether two orders are compatible: both matchable, same
// token pair, opposite sides, and price-compatible (buy >= sell).
func canMatch(a, b *Order, now time.Time) bool {
	if !a.matchable(now) || !b.matchable(now) {
		return false
	}
	if a.BaseToken != b.BaseToken || a.QuoteToken != b.QuoteToken {
		return false
	}
	if a.Side == b.Side {
		return false
	}
	buy, sell := a, b
	if a.Side == Sell {
		buy, sell = b, a
	}
	if buy.Price < sell.Price {
		return false
	}
	// A match whose overlap floors to zero quote units would deliver base
	// tokens for nothing.
	overlap := min(buy.Amount-buy.Filled, sell.Amount-sell.Filled)
	v, err := quoteValue(overlap, sell.Price)
	return err == nil && v > 0
}

// executeMatch trades the overlapping amount between a buy and a sell
// order. The trade executes at the sell order's price; the fee is taken
// from the buyer's locked quote funds and credited to the fee collector.
// Caller holds the ledger mutex.
func (l *Ledger) executeMatch(a, b *Order) error {
	buy, sell := a, b
	if a.Side == Sell {
		buy, sell = b, a
	}
	buyRemaining := buy.Amount - buy.Filled
	sellRemaining := sell.Amount - sell.Filled
	matchAmount := min(buyRemaining, sellRemaining)
	tradePrice := sell.Price
	totalValue, err := quoteValue(matchAmount, tradePrice)
	if err != nil {
		return err
	}
	fee := totalValue * l.feeRateBps / 10000
	netValue := totalValue - fee
	// The buyer reserved quote at their own (>=) price for this amount.
	// The final fill releases the whole residual lock instead, so the
	// floor division here cannot strand locked dust across partial fills.
	buyerShare, err := quoteValue(matchAmount, buy.Price)
	if err != nil {
		return err
	}
	if matchAmount == buyRemaining || buyerShare > buy.LockRemaining {
		buyerShare = buy.LockRemaining
	}
	sellerShare := matchAmount
	if matchAmount == sellRemaining {
		sellerShare = sell.LockRemaining
	}

	// Quote side: buyer pays totalValue out of their reservation, the
	// seller receives netValue, the collector receives the fee.
	l.unlockBalance(buy.Trader, buy.QuoteToken, buyerShare)
	buy.LockRemaining -= buyerShare
	if err := l.debitLocked(buy.Trader, buy.QuoteToken, totalValue); err != nil {
		return err
	}
	if netValue > 0 {
		if _, err := l.creditLocked(sell.Trader, sell.QuoteToken, netValue); err != nil {
			return err
		}
	}
	if fee > 0 {
		if _, err := l.creditLocked(l.feeCollector, buy.QuoteToken, fee); err != nil {
			return err
		}
	}
	// Base side: seller delivers the matched amount to the buyer.
	l.unlockBalance(sell.Trader, sell.BaseToken, sellerShare)
	sell.LockRemaining -= sellerShare
	if err := l.debitLocked(sell.Trader, sell.BaseToken, matchAmount); err != nil {
		return err
	}
	if _, err := l.creditLocked(buy.Trader, buy.BaseToken, matchAmount); err != nil {
		return err
	}

	if err := l.fillOrder(buy, matchAmount); err != nil {
		return err
	}
	if err := l.fillOrder(sell, matchAmount); err != nil {
		return err
	}

	l.logger.Info(
		"trade executed",
		"component", "trading",
		"buy_order_id", buy.ID,
		"sell_order_id", sell.ID,
		"amount", matchAmount,
		"price", tradePrice,
		"fee", fee,
	)
	if l.metrics != nil {
		l.metrics.trades.Inc()
		l.metrics.volume.Add(float64(totalValue))
	}
	l.publish(TradeEventType, TradeEvent{
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       buy.Trader,
		Seller:      sell.Trader,
		BaseToken:   buy.BaseToken,
		QuoteToken:  buy.QuoteToken,
		Amount:      matchAmount,
		Price:       tradePrice,
		Fee:         fee,
	})
	return nil
}

// fillOrder advances an order's filled counters and status. Caller holds
// the ledger mutex.
func (l *Ledger) fillOrder(order *Order, matchAmount uint64) error {
	encFilled, err := l.scheme.AddPlain(order.EncFilled, matchAmount)
	if err != nil {
		return err
	}
	order.EncFilled = encFilled
	order.Filled += matchAmount
	if order.Filled == order.Amount {
		order.Status = Filled
		order.Active_ = false
		if l.metrics != nil {
			l.metrics.openOrders.Dec()
		}
	} else {
		order.Status = PartiallyFilled
	}
	return nil
}
