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

package vault

import (
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/token"
)

const (
	DepositEventType event.EventType = "vault.deposit"
	ReleaseEventType event.EventType = "vault.release"
	ReturnEventType  event.EventType = "vault.return"
	LockEventType    event.EventType = "vault.lock"
)

type DepositEvent struct {
	CampaignID uint64
	Token      token.TokenID
	Depositor  token.Address
	Amount     uint64
}

type ReleaseEvent struct {
	CampaignID uint64
	Token      token.TokenID
	Recipient  token.Address
	Amount     uint64
}

type ReturnEvent struct {
	CampaignID uint64
	Token      token.TokenID
	Depositor  token.Address
	Amount     uint64
}

type LockEvent struct {
	CampaignID uint64
	Locked     bool
}
