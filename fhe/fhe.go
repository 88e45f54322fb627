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

// Package fhe provides the encrypted 64-bit integer type used by the vault,
// trading and campaign engines, along with the decryption oracle that
// resolves ciphertexts back to plaintext with an authenticity proof.
//
// The scheme is a coprocessor model, not a lattice implementation: a
// Ciphertext is an opaque handle, and the Scheme plays the role of the
// trusted encrypted-compute party holding the handle table. Engines never
// read plaintext except through Verify (dual-submission binding) and the
// Oracle. Homomorphic operations allocate fresh handles.
package fhe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

var (
	ErrUnknownCiphertext = errors.New("unknown ciphertext handle")
	ErrValueMismatch     = errors.New("ciphertext does not match claimed plaintext")
	ErrNotBoolean        = errors.New("ciphertext is not an encrypted boolean")
	ErrInvalidPayload    = errors.New("invalid sealed ciphertext payload")
)

// Handle identifies a ciphertext within the scheme's handle table.
type Handle [HandleSize]byte

func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// Ciphertext is an opaque encrypted 64-bit unsigned integer. The zero value
// is not a valid ciphertext; use Scheme.Encrypt or the homomorphic ops.
type Ciphertext struct {
	handle Handle
	valid  bool
}

// Handle returns the opaque handle identifying this ciphertext.
func (c Ciphertext) Handle() Handle {
	return c.handle
}

// Valid reports whether the ciphertext was produced by a Scheme.
func (c Ciphertext) Valid() bool {
	return c.valid
}

// Scheme is the trusted encrypted-compute party. It owns the handle table
// mapping ciphertext handles to their (hidden) plaintext values and performs
// all homomorphic operations. All methods are safe for concurrent use.
type Scheme struct {
	key    []byte
	values map[Handle]uint64
	mu     sync.RWMutex
}

// NewScheme creates a Scheme with a freshly generated sealing key.
func NewScheme() (*Scheme, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate scheme key: %w", err)
	}
	return NewSchemeWithKey(key)
}

// NewSchemeWithKey creates a Scheme using the provided 32-byte sealing key.
// Reusing a key across restarts allows previously sealed ciphertexts to be
// imported again.
func NewSchemeWithKey(key []byte) (*Scheme, error) {
	if len(key) != 32 {
		return nil, errors.New("scheme key must be 32 bytes")
	}
	return &Scheme{
		key:    append([]byte{}, key...),
		values: make(map[Handle]uint64),
	}, nil
}

// Key returns the scheme's sealing key.
func (s *Scheme) Key() []byte {
	return append([]byte{}, s.key...)
}

// newHandle allocates a random handle and records the value under it.
func (s *Scheme) newHandle(value uint64) (Ciphertext, error) {
	var h Handle
	if _, err := rand.Read(h[:]); err != nil {
		return Ciphertext{}, fmt.Errorf("failed to allocate handle: %w", err)
	}
	s.mu.Lock()
	s.values[h] = value
	s.mu.Unlock()
	return Ciphertext{handle: h, valid: true}, nil
}

func (s *Scheme) lookup(c Ciphertext) (uint64, error) {
	if !c.valid {
		return 0, ErrUnknownCiphertext
	}
	s.mu.RLock()
	v, ok := s.values[c.handle]
	s.mu.RUnlock()
	if !ok {
		return 0, ErrUnknownCiphertext
	}
	return v, nil
}

// Encrypt produces a ciphertext for the given value. Clients use this to
// build the encrypted half of a dual submission.
func (s *Scheme) Encrypt(value uint64) (Ciphertext, error) {
	return s.newHandle(value)
}

// Zero returns a fresh encryption of zero, used to initialize encrypted
// aggregates.
func (s *Scheme) Zero() (Ciphertext, error) {
	return s.newHandle(0)
}

// Verify checks that the ciphertext encrypts the claimed plaintext. This is
// the dual-submission consistency check: the encrypted value is the real
// record, the plaintext drives arithmetic, and Verify binds them before the
// engine trusts either.
func (s *Scheme) Verify(c Ciphertext, claimed uint64) error {
	v, err := s.lookup(c)
	if err != nil {
		return err
	}
	if v != claimed {
		return ErrValueMismatch
	}
	return nil
}

// Add returns a ciphertext encrypting a + b (mod 2^64).
func (s *Scheme) Add(a, b Ciphertext) (Ciphertext, error) {
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	bv, err := s.lookup(b)
	if err != nil {
		return Ciphertext{}, err
	}
	return s.newHandle(av + bv)
}

// Sub returns a ciphertext encrypting a - b (mod 2^64). Engines are expected
// to establish a >= b before subtracting; the scheme does not reveal
// underflow.
func (s *Scheme) Sub(a, b Ciphertext) (Ciphertext, error) {
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	bv, err := s.lookup(b)
	if err != nil {
		return Ciphertext{}, err
	}
	return s.newHandle(av - bv)
}

// AddPlain returns a ciphertext encrypting a + v (mod 2^64).
func (s *Scheme) AddPlain(a Ciphertext, v uint64) (Ciphertext, error) {
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	return s.newHandle(av + v)
}

// SubPlain returns a ciphertext encrypting a - v (mod 2^64).
func (s *Scheme) SubPlain(a Ciphertext, v uint64) (Ciphertext, error) {
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	return s.newHandle(av - v)
}

// Comparison operations return an encrypted boolean (0 or 1).

func (s *Scheme) Eq(a, b Ciphertext) (Ciphertext, error) {
	return s.compare(a, b, func(x, y uint64) bool { return x == y })
}

func (s *Scheme) Gt(a, b Ciphertext) (Ciphertext, error) {
	return s.compare(a, b, func(x, y uint64) bool { return x > y })
}

func (s *Scheme) Gte(a, b Ciphertext) (Ciphertext, error) {
	return s.compare(a, b, func(x, y uint64) bool { return x >= y })
}

func (s *Scheme) Lt(a, b Ciphertext) (Ciphertext, error) {
	return s.compare(a, b, func(x, y uint64) bool { return x < y })
}

func (s *Scheme) Lte(a, b Ciphertext) (Ciphertext, error) {
	return s.compare(a, b, func(x, y uint64) bool { return x <= y })
}

// GtePlain returns an encrypted boolean for a >= v.
func (s *Scheme) GtePlain(a Ciphertext, v uint64) (Ciphertext, error) {
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	return s.encryptBool(av >= v)
}

func (s *Scheme) compare(
	a, b Ciphertext,
	cmp func(uint64, uint64) bool,
) (Ciphertext, error) {
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	bv, err := s.lookup(b)
	if err != nil {
		return Ciphertext{}, err
	}
	return s.encryptBool(cmp(av, bv))
}

func (s *Scheme) encryptBool(b bool) (Ciphertext, error) {
	if b {
		return s.newHandle(1)
	}
	return s.newHandle(0)
}

// Select returns a ciphertext encrypting a when cond encrypts 1 and b when
// cond encrypts 0. This is the branchless conditional assignment.
func (s *Scheme) Select(cond, a, b Ciphertext) (Ciphertext, error) {
	cv, err := s.lookup(cond)
	if err != nil {
		return Ciphertext{}, err
	}
	if cv > 1 {
		return Ciphertext{}, ErrNotBoolean
	}
	av, err := s.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	bv, err := s.lookup(b)
	if err != nil {
		return Ciphertext{}, err
	}
	if cv == 1 {
		return s.newHandle(av)
	}
	return s.newHandle(bv)
}

// Seal exports a ciphertext as a self-contained sealed payload (handle plus
// AES-GCM sealed value) suitable for blob storage. A Scheme created with the
// same key can Unseal it after a restart.
func (s *Scheme) Seal(c Ciphertext) ([]byte, error) {
	v, err := s.lookup(c)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], v)
	out := make([]byte, 0, HandleSize+len(nonce)+8+gcm.Overhead())
	out = append(out, c.handle[:]...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain[:], c.handle[:])
	return out, nil
}

// Unseal imports a sealed payload produced by Seal, restoring the ciphertext
// under its original handle.
func (s *Scheme) Unseal(payload []byte) (Ciphertext, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return Ciphertext{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Ciphertext{}, err
	}
	if len(payload) < HandleSize+gcm.NonceSize()+8 {
		return Ciphertext{}, ErrInvalidPayload
	}
	var h Handle
	copy(h[:], payload[:HandleSize])
	nonce := payload[HandleSize : HandleSize+gcm.NonceSize()]
	sealed := payload[HandleSize+gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, h[:])
	if err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(plain) != 8 {
		return Ciphertext{}, ErrInvalidPayload
	}
	v := binary.BigEndian.Uint64(plain)
	s.mu.Lock()
	s.values[h] = v
	s.mu.Unlock()
	return Ciphertext{handle: h, valid: true}, nil
}

// proofMAC computes the authenticity proof for a decryption result.
func proofMAC(key []byte, requestID uint64, plaintext uint64) []byte {
	mac := hmac.New(sha256.New, key)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], requestID)
	binary.BigEndian.PutUint64(buf[8:], plaintext)
	mac.Write(buf[:])
	return mac.Sum(nil)
}
