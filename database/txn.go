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
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"
)

// Txn coordinates a write across the metadata and blob stores. Writes that
// must land together, such as persisting an order row alongside its sealed
// ciphertext payloads, go through a Txn so a failure in either store rolls
// back both.
type Txn struct {
	db          *Database
	metadataTxn *gorm.DB
	blobTxn     *badger.Txn
	finished    bool
}

func NewTxn(db *Database) *Txn {
	return &Txn{
		db:          db,
		metadataTxn: db.metadata.Begin(),
		blobTxn:     db.blob.NewTransaction(true),
	}
}

// Metadata returns the transaction handle for the metadata store.
func (t *Txn) Metadata() *gorm.DB {
	return t.metadataTxn
}

// SetCiphertext stores a sealed ciphertext payload inside the transaction.
func (t *Txn) SetCiphertext(handle, payload []byte) error {
	key := append(append([]byte{}, ciphertextPrefix...), handle...)
	return t.blobTxn.Set(key, payload)
}

// Do runs the provided function in the transaction, committing on a nil
// return and rolling back otherwise.
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		return errors.Join(err, t.Rollback())
	}
	return t.Commit()
}

func (t *Txn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.updateCommitTimestamp(time.Now().UnixMilli()); err != nil {
		t.blobTxn.Discard()
		return errors.Join(err, t.metadataTxn.Rollback().Error)
	}
	if result := t.metadataTxn.Commit(); result.Error != nil {
		t.blobTxn.Discard()
		return result.Error
	}
	if err := t.blobTxn.Commit(); err != nil {
		return err
	}
	return nil
}

func (t *Txn) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.blobTxn.Discard()
	if result := t.metadataTxn.Rollback(); result.Error != nil {
		return result.Error
	}
	return nil
}
