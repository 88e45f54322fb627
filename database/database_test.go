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

package database_test

import (
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbralabs-io/umbra/database"
	"github.com/umbralabs-io/umbra/database/models"
)

func TestDatabaseInMemory(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	assert.NotNil(t, db.Metadata())
	assert.NotNil(t, db.Blob())
}

func TestDatabasePersistent(t *testing.T) {
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCiphertextRoundTrip(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	handle := []byte("0123456789abcdef0123456789abcdef")
	payload := []byte("sealed-payload")
	require.NoError(t, db.SetCiphertext(handle, payload))
	got, err := db.GetCiphertext(handle)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	_, err = db.GetCiphertext([]byte("missing"))
	assert.ErrorIs(t, err, database.ErrBlobNotFound)
}

func TestVaultUpsert(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	vault := &models.Vault{
		CampaignID:     7,
		Token:          "reward-token",
		Depositor:      "creator",
		TotalDeposited: 1000,
		Remaining:      1000,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, db.SaveVault(vault))
	vault.TotalReleased = 400
	vault.Remaining = 600
	require.NoError(t, db.SaveVault(vault))
	vaults, err := db.Vaults()
	require.NoError(t, err)
	require.Len(t, vaults, 1)
	assert.Equal(t, uint64(400), vaults[0].TotalReleased)
	assert.Equal(t, uint64(600), vaults[0].Remaining)
}

func TestOrdersReturnedInIdOrder(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	for _, id := range []uint64{3, 1, 2} {
		require.NoError(t, db.SaveOrder(&models.Order{
			OrderID:    id,
			Trader:     "trader",
			BaseToken:  "base",
			QuoteToken: "quote",
		}))
	}
	orders, err := db.Orders()
	require.NoError(t, err)
	require.Len(t, orders, 3)
	for i, o := range orders {
		assert.Equal(t, uint64(i+1), o.OrderID)
	}
}

func TestTxnRollback(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	txn := db.Transaction()
	err = txn.Do(func(t *database.Txn) error {
		if result := t.Metadata().Create(&models.Campaign{CampaignID: 1}); result.Error != nil {
			return result.Error
		}
		return assert.AnError
	})
	require.Error(t, err)
	campaigns, err := db.Campaigns()
	require.NoError(t, err)
	assert.Empty(t, campaigns)
}

func TestContributionsByCampaign(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.SaveContribution(&models.Contribution{
		CampaignID:  1,
		Contributor: "alice",
		Value:       5,
	}))
	require.NoError(t, db.SaveContribution(&models.Contribution{
		CampaignID:  2,
		Contributor: "bob",
		Value:       9,
	}))
	contribs, err := db.Contributions(1)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	assert.Equal(t, "alice", contribs[0].Contributor)
}

func TestCommitTimestampMismatch(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	err = db.Transaction().Do(func(txn *database.Txn) error {
		result := txn.Metadata().Create(&models.Campaign{CampaignID: 1})
		return result.Error
	})
	require.NoError(t, err)
	// Desync the blob store's timestamp to simulate a half-applied commit
	stale := make([]byte, 8)
	require.NoError(t, db.Blob().Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("commit_timestamp"), stale)
	}))
	require.NoError(t, db.Close())
	_, err = database.New(&database.Config{DataDir: dataDir})
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.NotZero(t, tsErr.MetadataTimestamp)
}

func TestCommitTimestampReopen(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	err = db.Transaction().Do(func(txn *database.Txn) error {
		result := txn.Metadata().Create(&models.Campaign{CampaignID: 1})
		return result.Error
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
