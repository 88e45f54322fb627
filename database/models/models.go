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

// Package models defines the gorm models persisted by the metadata store.
// Encrypted values are not stored here; ciphertext payloads live in the
// blob store keyed by handle, and the models carry only the handle
// reference plus the plaintext bookkeeping fields.
package models

import "time"

// MigrateModels is the list of models auto-migrated on open.
var MigrateModels = []any{
	&Vault{},
	&Order{},
	&TraderBalance{},
	&Campaign{},
	&Contribution{},
}

// Vault is the persisted custody record for one campaign.
type Vault struct {
	ID             uint   `gorm:"primarykey"`
	CampaignID     uint64 `gorm:"uniqueIndex"`
	Token          string `gorm:"index"`
	Depositor      string `gorm:"index"`
	TotalDeposited uint64
	TotalReleased  uint64
	TotalReturned  uint64
	Remaining      uint64
	Locked         bool
	CreatedAt      time.Time
}

func (Vault) TableName() string {
	return "vault"
}

// Order is a persisted trading order. The encrypted amount, price and
// filled counters are referenced by blob handle.
type Order struct {
	ID              uint   `gorm:"primarykey"`
	OrderID         uint64 `gorm:"uniqueIndex"`
	Trader          string `gorm:"index"`
	BaseToken       string `gorm:"index"`
	QuoteToken      string `gorm:"index"`
	Side            uint8
	Status          uint8 `gorm:"index"`
	Amount          uint64
	Price           uint64
	Filled          uint64
	EncAmountHandle []byte `gorm:"size:32"`
	EncPriceHandle  []byte `gorm:"size:32"`
	EncFilledHandle []byte `gorm:"size:32"`
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (Order) TableName() string {
	return "trading_order"
}

// TraderBalance is a persisted trader balance for one token.
type TraderBalance struct {
	ID            uint   `gorm:"primarykey"`
	Trader        string `gorm:"index:idx_trader_token,unique"`
	Token         string `gorm:"index:idx_trader_token,unique"`
	Locked        uint64
	Deposited     uint64
	Withdrawn     uint64
	BalanceHandle []byte `gorm:"size:32"`
	UpdatedAt     time.Time
}

func (TraderBalance) TableName() string {
	return "trader_balance"
}

// Campaign is a persisted fundraising round.
type Campaign struct {
	ID             uint   `gorm:"primarykey"`
	CampaignID     uint64 `gorm:"uniqueIndex"`
	Creator        string `gorm:"index"`
	RewardToken    string
	TokenSupply    uint64
	FundingGoal    uint64
	PricePerToken  uint64
	MinBid         uint64
	MaxBid         uint64
	Live           bool `gorm:"index"`
	State          uint8
	ComputeState   uint8
	RevealedTotal  uint64
	Info           string
	EncTotalHandle []byte `gorm:"size:32"`
	LaunchTime     time.Time
	ClosingTime    time.Time
}

func (Campaign) TableName() string {
	return "campaign"
}

// Contribution is a persisted secret contribution entry.
type Contribution struct {
	ID              uint   `gorm:"primarykey"`
	CampaignID      uint64 `gorm:"index"`
	Contributor     string `gorm:"index"`
	Value           uint64
	RewardsClaimed  bool
	FundsReclaimed  bool
	EncAmountHandle []byte `gorm:"size:32"`
	Timestamp       time.Time
}

func (Contribution) TableName() string {
	return "contribution"
}
