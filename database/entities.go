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

package database

import (
	"github.com/umbralabs-io/umbra/database/models"
	"gorm.io/gorm/clause"
)

// SaveVault upserts a vault record keyed by campaign ID.
func (d *Database) SaveVault(v *models.Vault) error {
	result := d.metadata.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}},
		UpdateAll: true,
	}).Create(v)
	return result.Error
}

// Vaults returns all persisted vault records.
func (d *Database) Vaults() ([]models.Vault, error) {
	var ret []models.Vault
	result := d.metadata.Order("campaign_id").Find(&ret)
	return ret, result.Error
}

// SaveOrder upserts an order record keyed by order ID.
func (d *Database) SaveOrder(o *models.Order) error {
	result := d.metadata.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(o)
	return result.Error
}

// Orders returns all persisted order records in order-ID order. Matching
// on restore depends on this ordering.
func (d *Database) Orders() ([]models.Order, error) {
	var ret []models.Order
	result := d.metadata.Order("order_id").Find(&ret)
	return ret, result.Error
}

// SaveTraderBalance upserts a trader balance record keyed by trader and
// token.
func (d *Database) SaveTraderBalance(b *models.TraderBalance) error {
	result := d.metadata.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trader"}, {Name: "token"}},
		UpdateAll: true,
	}).Create(b)
	return result.Error
}

// TraderBalances returns all persisted trader balance records.
func (d *Database) TraderBalances() ([]models.TraderBalance, error) {
	var ret []models.TraderBalance
	result := d.metadata.Find(&ret)
	return ret, result.Error
}

// SaveCampaign upserts a campaign record keyed by campaign ID.
func (d *Database) SaveCampaign(c *models.Campaign) error {
	result := d.metadata.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}},
		UpdateAll: true,
	}).Create(c)
	return result.Error
}

// Campaigns returns all persisted campaign records.
func (d *Database) Campaigns() ([]models.Campaign, error) {
	var ret []models.Campaign
	result := d.metadata.Order("campaign_id").Find(&ret)
	return ret, result.Error
}

// SaveContribution inserts a contribution record. Contributions are
// append-only; claim and reclaim flags are updated in place.
func (d *Database) SaveContribution(c *models.Contribution) error {
	if c.ID != 0 {
		result := d.metadata.Save(c)
		return result.Error
	}
	result := d.metadata.Create(c)
	return result.Error
}

// Contributions returns the persisted contributions for a campaign in
// insertion order.
func (d *Database) Contributions(campaignID uint64) ([]models.Contribution, error) {
	var ret []models.Contribution
	result := d.metadata.
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&ret)
	return ret, result.Error
}
