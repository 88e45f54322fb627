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
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/token"
)

const (
	DepositEventType        event.EventType = "trading.deposit"
	WithdrawEventType       event.EventType = "trading.withdraw"
	OrderPlacedEventType    event.EventType = "trading.order_placed"
	OrderCancelledEventType event.EventType = "trading.order_cancelled"
	TradeEventType          event.EventType = "trading.trade"
)

type DepositEvent struct {
	Trader token.Address
	Token  token.TokenID
	Amount uint64
}

type WithdrawEvent struct {
	Trader token.Address
	Token  token.TokenID
	Amount uint64
}

type OrderPlacedEvent struct {
	OrderID    uint64
	Trader     token.Address
	BaseToken  token.TokenID
	QuoteToken token.TokenID
	Side       Side
}

type OrderCancelledEvent struct {
	OrderID uint64
	Trader  token.Address
}

type TradeEvent struct {
	BuyOrderID  uint64
	SellOrderID uint64
	Buyer       token.Address
	Seller      token.Address
	BaseToken   token.TokenID
	QuoteToken  token.TokenID
	Amount      uint64
	Price       uint64
	Fee         uint64
}
