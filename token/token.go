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

// Package token implements the fungible token transfer collaborator and the
// native value ledger consumed by the vault, trading and campaign engines.
// Transfers are atomic; a failure leaves all balances untouched and must
// abort the calling operation.
package token

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

var (
	ErrZeroAmount            = errors.New("zero amount")
	ErrZeroAddress           = errors.New("zero address")
	ErrUnknownToken          = errors.New("unknown token")
	ErrTokenExists           = errors.New("token already registered")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Address identifies an account. The empty string is the zero address and is
// rejected everywhere.
type Address string

// TokenID identifies a fungible token within the registry.
type TokenID string

type tokenState struct {
	balances    map[Address]uint64
	allowances  map[Address]map[Address]uint64
	totalSupply uint64
}

// Registry holds fungible token balances and allowances plus the native
// value ledger used for contribution payments and payouts. All methods are
// safe for concurrent use.
type Registry struct {
	tokens map[TokenID]*tokenState
	native map[Address]uint64
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty token registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Registry{
		tokens: make(map[TokenID]*tokenState),
		native: make(map[Address]uint64),
		logger: logger,
	}
}

// Register creates a new token with zero supply.
func (r *Registry) Register(id TokenID) error {
	if id == "" {
		return ErrUnknownToken
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; ok {
		return ErrTokenExists
	}
	r.tokens[id] = &tokenState{
		balances:   make(map[Address]uint64),
		allowances: make(map[Address]map[Address]uint64),
	}
	r.logger.Debug(
		"registered token",
		"component", "token",
		"token", string(id),
	)
	return nil
}

// Exists reports whether a token has been registered.
func (r *Registry) Exists(id TokenID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[id]
	return ok
}

// Mint credits newly issued tokens to an account.
func (r *Registry) Mint(id TokenID, to Address, amount uint64) error {
	if to == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.tokens[id]
	if !ok {
		return ErrUnknownToken
	}
	ts.balances[to] += amount
	ts.totalSupply += amount
	return nil
}

// BalanceOf returns the balance of an account for a token.
func (r *Registry) BalanceOf(id TokenID, owner Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.tokens[id]
	if !ok {
		return 0
	}
	return ts.balances[owner]
}

// Allowance returns the amount a spender may transfer on behalf of an owner.
func (r *Registry) Allowance(id TokenID, owner, spender Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.tokens[id]
	if !ok {
		return 0
	}
	return ts.allowances[owner][spender]
}

// Approve sets a spender's allowance over the owner's balance.
func (r *Registry) Approve(
	id TokenID,
	owner, spender Address,
	amount uint64,
) error {
	if owner == "" || spender == "" {
		return ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.tokens[id]
	if !ok {
		return ErrUnknownToken
	}
	if ts.allowances[owner] == nil {
		ts.allowances[owner] = make(map[Address]uint64)
	}
	ts.allowances[owner][spender] = amount
	return nil
}

// Transfer moves tokens from one account to another.
func (r *Registry) Transfer(
	id TokenID,
	from, to Address,
	amount uint64,
) error {
	if from == "" || to == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.tokens[id]
	if !ok {
		return ErrUnknownToken
	}
	if ts.balances[from] < amount {
		return ErrInsufficientBalance
	}
	ts.balances[from] -= amount
	ts.balances[to] += amount
	return nil
}

// TransferFrom moves tokens from an owner using the spender's allowance.
func (r *Registry) TransferFrom(
	id TokenID,
	spender, from, to Address,
	amount uint64,
) error {
	if spender == "" || from == "" || to == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.tokens[id]
	if !ok {
		return ErrUnknownToken
	}
	if ts.allowances[from][spender] < amount {
		return ErrInsufficientAllowance
	}
	if ts.balances[from] < amount {
		return ErrInsufficientBalance
	}
	ts.allowances[from][spender] -= amount
	ts.balances[from] -= amount
	ts.balances[to] += amount
	return nil
}

// MintNative credits native value to an account. Used for genesis funding
// and tests.
func (r *Registry) MintNative(to Address, amount uint64) error {
	if to == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.native[to] += amount
	return nil
}

// NativeBalance returns an account's native value balance.
func (r *Registry) NativeBalance(owner Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.native[owner]
}

// Pay moves native value between accounts. This models both the value
// attached to a contribution call and the outbound payout primitive.
func (r *Registry) Pay(from, to Address, amount uint64) error {
	if from == "" || to == "" {
		return ErrZeroAddress
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.native[from] < amount {
		return ErrInsufficientBalance
	}
	r.native[from] -= amount
	r.native[to] += amount
	return nil
}
