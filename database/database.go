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

// Package database provides persistence for the engine's entities. Metadata
// (vaults, orders, balances, campaigns, contributions) lives in a sqlite
// store via gorm; sealed ciphertext payloads live in a badger blob store
// keyed by handle. The two stores are coordinated through Txn for writes
// that must commit together.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"github.com/umbralabs-io/umbra/database/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrBlobNotFound = errors.New("blob not found")

// ciphertextPrefix namespaces sealed ciphertext payloads in the blob store.
var ciphertextPrefix = []byte("ct/")

// Config configures a Database. An empty DataDir selects in-memory storage
// for both stores, useful for testing.
type Config struct {
	DataDir string
	Logger  *slog.Logger
}

// Database wraps the metadata and blob stores.
type Database struct {
	logger   *slog.Logger
	metadata *gorm.DB
	blob     *badger.DB
	dataDir  string
}

// New opens (or creates) a database under the configured data directory.
func New(cfg *Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataDb, err := openMetadata(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	blobDb, err := openBlob(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	db := &Database{
		logger:   logger,
		metadata: metadataDb,
		blob:     blobDb,
		dataDir:  cfg.DataDir,
	}
	if err := db.metadata.AutoMigrate(&CommitTimestamp{}); err != nil {
		return nil, err
	}
	for _, model := range models.MigrateModels {
		db.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := db.metadata.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	// Check that the metadata and blob stores committed together the last
	// time the database was open
	if err := db.checkCommitTimestamp(); err != nil {
		return nil, err
	}
	return db, nil
}

func openMetadata(dataDir string) (*gorm.DB, error) {
	if dataDir == "" {
		// cache=shared allows multiple connections to share the same
		// in-memory database
		return gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	}
	if _, err := os.Stat(dataDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read data dir: %w", err)
		}
		if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	metadataDbPath := filepath.Join(dataDir, "metadata.sqlite")
	// WAL journal mode, disable sync on write
	metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
	return gorm.Open(
		sqlite.Open(
			fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
		),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
}

func openBlob(dataDir string, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		blobDir := filepath.Join(dataDir, "blob")
		if err := os.MkdirAll(blobDir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create blob dir: %w", err)
		}
		opts = badger.DefaultOptions(blobDir)
	}
	opts = opts.WithLogger(newBadgerLogger(logger))
	return badger.Open(opts)
}

// Metadata returns the underlying metadata store handle.
func (d *Database) Metadata() *gorm.DB {
	return d.metadata
}

// Blob returns the underlying blob store handle.
func (d *Database) Blob() *badger.DB {
	return d.blob
}

// DataDir returns the path to the data directory used for storage.
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance.
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Transaction starts a new coordinated transaction across both stores.
func (d *Database) Transaction() *Txn {
	return NewTxn(d)
}

// SetCiphertext stores a sealed ciphertext payload under its handle.
func (d *Database) SetCiphertext(handle, payload []byte) error {
	return d.blob.Update(func(txn *badger.Txn) error {
		key := append(append([]byte{}, ciphertextPrefix...), handle...)
		return txn.Set(key, payload)
	})
}

// GetCiphertext retrieves a sealed ciphertext payload by handle.
func (d *Database) GetCiphertext(handle []byte) ([]byte, error) {
	var payload []byte
	err := d.blob.View(func(txn *badger.Txn) error {
		key := append(append([]byte{}, ciphertextPrefix...), handle...)
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBlobNotFound
			}
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	return payload, err
}

// Close cleans up the database connections.
func (d *Database) Close() error {
	var err error
	if sqlDb, sqlErr := d.metadata.DB(); sqlErr == nil {
		err = errors.Join(err, sqlDb.Close())
	}
	err = errors.Join(err, d.blob.Close())
	return err
}

// badgerLogger adapts badger's logging interface to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With("component", "blob")}
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}
