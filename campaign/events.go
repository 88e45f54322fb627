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
	"github.com/umbralabs-io/umbra/event"
	"github.com/umbralabs-io/umbra/fhe"
	"github.com/umbralabs-io/umbra/token"
)

const (
	LaunchedEventType         event.EventType = "campaign.launched"
	ContributedEventType      event.EventType = "campaign.contributed"
	ComputeRequestedEventType event.EventType = "campaign.compute_requested"
	SettledEventType          event.EventType = "campaign.settled"
	ClaimedEventType          event.EventType = "campaign.claimed"
	ReclaimedEventType        event.EventType = "campaign.reclaimed"
	CancelledEventType        event.EventType = "campaign.cancelled"
)

type LaunchedEvent struct {
	CampaignID uint64
	Creator    token.Address
	Goal       uint64
}

type ContributedEvent struct {
	CampaignID  uint64
	Contributor token.Address
}

type ComputeRequestedEvent struct {
	CampaignID uint64
	RequestID  fhe.RequestID
}

type SettledEvent struct {
	CampaignID uint64
	State      State
	Raised     uint64
}

type ClaimedEvent struct {
	CampaignID  uint64
	Contributor token.Address
	Amount      uint64
}

type ReclaimedEvent struct {
	CampaignID  uint64
	Contributor token.Address
	Amount      uint64
}

type CancelledEvent struct {
	CampaignID uint64
}
