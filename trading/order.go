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

	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
)

// Side is the order direction.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Status is the order lifecycle state. Filled and Cancelled are terminal.
type Status uint8

const (
	Active Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is a resting order. Encrypted amount/price/filled are the
// privacy-preserving record; the plaintext mirrors drive matching
// arithmetic and are bound to the ciphertexts at placement by the dual
// submission check. Orders are never deleted.
type Order struct {
	ID         uint64
	Trader     token.Address
	BaseToken  token.TokenID
	QuoteToken token.TokenID
	Side       Side
	Status     Status
	CreatedAt  time.Time
	ExpiresAt  time.Time
	EncAmount  fhe.Ciphertext
	EncPrice   fhe.Ciphertext
	EncFilled  fhe.Ciphertext
	Amount     uint64
	Price      uint64
	Filled     uint64
	// LockRemaining is the unreleased portion of the placement lock. Fills
	// release per-fill shares computed with floor division, so the residual
	// can exceed the remainder's nominal value by rounding dust; the final
	// fill and cancellation release it in full.
	LockRemaining uint64
	Active_       bool
}

// matchable reports whether the order can still participate in matching.
func (o *Order) matchable(now time.Time) bool {
	if o.Status != Active && o.Status != PartiallyFilled {
		return false
	}
	return !now.After(o.ExpiresAt)
}

// lockToken returns the token the order's placement lock is held in.
func (o *Order) lockToken() token.TokenID {
	if o.Side == Sell {
		return o.BaseToken
	}
	return o.QuoteToken
}

// lockRequirement returns the token and amount to reserve at placement.
func (o *Order) lockRequirement(amount uint64) (token.TokenID, uint64, error) {
	if o.Side == Sell {
		return o.BaseToken, amount, nil
	}
	v, err := quoteValue(amount, o.Price)
	if err != nil {
		return "", 0, err
	}
	return o.QuoteToken, v, nil
}

// PlaceOrder validates and locks funds for a new order, inserts it into the
// book under a freshly allocated id, and immediately attempts matching.
// encAmount/encPrice with amount/price form the dual submission; a mismatch
// rejects the order with funds untouched.
func (l *Ledger) PlaceOrder(
	trader token.Address,
	baseToken, quoteToken token.TokenID,
	side Side,
	encAmount, encPrice fhe.Ciphertext,
	amount, price uint64,
) (uint64, error) {
	if trader == "" {
		return 0, ErrZeroAddress
	}
	if baseToken == quoteToken {
		return 0, ErrSameToken
	}
	if amount == 0 {
		return 0, ErrZeroAmount
	}
	if price == 0 {
		return 0, ErrZeroPrice
	}
	// Orders whose full value floors to zero quote units would lock
	// nothing and deliver base for free at execution.
	fullValue, err := quoteValue(amount, price)
	if err != nil {
		return 0, err
	}
	if fullValue == 0 {
		return 0, ErrValueTooSmall
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.supported[baseToken] || !l.supported[quoteToken] {
		return 0, ErrUnsupportedToken
	}
	if err := l.scheme.Verify(encAmount, amount); err != nil {
		return 0, err
	}
	if err := l.scheme.Verify(encPrice, price); err != nil {
		return 0, err
	}
	now := time.Now()
	order := &Order{
		Trader:     trader,
		BaseToken:  baseToken,
		QuoteToken: quoteToken,
		Side:       side,
		Status:     Active,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.lifetime),
		EncAmount:  encAmount,
		EncPrice:   encPrice,
		Amount:     amount,
		Price:      price,
		Active_:    true,
	}
	lockToken, lockAmount, err := order.lockRequirement(amount)
	if err != nil {
		return 0, err
	}
	if err := l.lockBalance(trader, lockToken, lockAmount); err != nil {
		return 0, err
	}
	order.LockRemaining = lockAmount
	encFilled, err := l.scheme.Zero()
	if err != nil {
		l.unlockBalance(trader, lockToken, lockAmount)
		return 0, err
	}
	order.EncFilled = encFilled
	// Allocate id and insert as one step so ids are dense and the order is
	// visible to matching immediately.
	order.ID = l.nextOrderID
	l.nextOrderID++
	l.orders[order.ID] = order
	l.traderOrders[trader] = append(l.traderOrders[trader], order.ID)
	l.logger.Info(
		"order placed",
		"component", "trading",
		"order_id", order.ID,
		"trader", string(trader),
		"side", side.String(),
		"pair", string(baseToken)+"/"+string(quoteToken),
	)
	if l.metrics != nil {
		l.metrics.ordersPlaced.Inc()
		l.metrics.openOrders.Inc()
	}
	l.publish(OrderPlacedEventType, OrderPlacedEvent{
		OrderID:    order.ID,
		Trader:     trader,
		BaseToken:  baseToken,
		QuoteToken: quoteToken,
		Side:       side,
	})
	if err := l.matchOrder(order); err != nil {
		// The order is already booked; matching errors are surfaced to the
		// caller but do not unwind the placement. Matching can only fail on
		// scheme handle faults, which mean corrupted engine state rather
		// than a bad order, so a partially applied trade leg is not
		// unwound either.
		return order.ID, err
	}
	return order.ID, nil
}

// CancelOrder cancels the caller's order and unlocks the unfilled
// remainder. Partially filled orders are cancellable for their remainder;
// Filled and Cancelled orders are terminal.
func (l *Ledger) CancelOrder(trader token.Address, orderID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Trader != trader {
		return ErrNotOrderOwner
	}
	if order.Status != Active && order.Status != PartiallyFilled {
		return ErrOrderNotActive
	}
	order.Status = Cancelled
	order.Active_ = false
	// Release the full residual lock, including any rounding dust left by
	// partial fills.
	l.unlockBalance(trader, order.lockToken(), order.LockRemaining)
	order.LockRemaining = 0
	l.logger.Info(
		"order cancelled",
		"component", "trading",
		"order_id", orderID,
		"trader", string(trader),
	)
	if l.metrics != nil {
		l.metrics.openOrders.Dec()
	}
	l.publish(OrderCancelledEventType, OrderCancelledEvent{
		OrderID: orderID,
		Trader:  trader,
	})
	return nil
}

// GetOrder returns a copy of an order.
func (l *Ledger) GetOrder(orderID uint64) (Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	order, ok := l.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *order, nil
}

// GetTraderOrders returns copies of all orders placed by a trader.
func (l *Ledger) GetTraderOrders(trader token.Address) []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.traderOrders[trader]
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := l.orders[id]; ok {
			out = append(out, *order)
		}
	}
	return out
}

// GetActiveOrders returns copies of all orders still eligible for matching,
// in order-id ascending order.
func (l *Ledger) GetActiveOrders() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := time.Now()
	out := make([]Order, 0)
	for id := uint64(1); id < l.nextOrderID; id++ {
		order, ok := l.orders[id]
		if !ok {
			continue
		}
		if order.matchable(now) {
			out = append(out, *order)
		}
	}
	return out
}
