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
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const commitTimestampRowId = 1

var commitTimestampBlobKey = []byte("commit_timestamp")

// CommitTimestamp tracks the timestamp of the last coordinated commit in the
// metadata store. The blob store carries the same value under a dedicated
// key, and the two are compared on open to detect a half-applied commit.
type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}

type CommitTimestampError struct {
	MetadataTimestamp int64
	BlobTimestamp     int64
}

func (e CommitTimestampError) Error() string {
	return fmt.Sprintf(
		"commit timestamp mismatch: %d (metadata) != %d (blob)",
		e.MetadataTimestamp,
		e.BlobTimestamp,
	)
}

func (d *Database) checkCommitTimestamp() error {
	metadataTimestamp, err := d.metadataCommitTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get metadata timestamp: %w", err)
	}
	// No timestamp in the database
	if metadataTimestamp <= 0 {
		return nil
	}
	blobTimestamp, err := d.blobCommitTimestamp()
	if err != nil {
		return fmt.Errorf("failed to get blob timestamp: %w", err)
	}
	if blobTimestamp != metadataTimestamp {
		return CommitTimestampError{
			MetadataTimestamp: metadataTimestamp,
			BlobTimestamp:     blobTimestamp,
		}
	}
	return nil
}

func (d *Database) metadataCommitTimestamp() (int64, error) {
	var tmpCommitTimestamp CommitTimestamp
	result := d.metadata.First(&tmpCommitTimestamp)
	if result.Error != nil {
		// It's not an error if there's no records found
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return tmpCommitTimestamp.Timestamp, nil
}

func (d *Database) blobCommitTimestamp() (int64, error) {
	var timestamp int64
	err := d.blob.View(func(txn *badger.Txn) error {
		item, err := txn.Get(commitTimestampBlobKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				timestamp = int64(binary.BigEndian.Uint64(val))
			}
			return nil
		})
	})
	return timestamp, err
}

// updateCommitTimestamp stamps both stores within the given transaction so
// they commit (or fail) with matching values.
func (t *Txn) updateCommitTimestamp(timestamp int64) error {
	tmpCommitTimestamp := CommitTimestamp{
		ID:        commitTimestampRowId,
		Timestamp: timestamp,
	}
	result := t.metadataTxn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp"}),
	}).Create(&tmpCommitTimestamp)
	if result.Error != nil {
		return result.Error
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(timestamp)) // #nosec G115
	return t.blobTxn.Set(commitTimestampBlobKey, val)
}
