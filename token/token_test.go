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

package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbralabs-io/umbra/token"
)

func TestRegisterAndMint(t *testing.T) {
	reg := token.NewRegistry(nil)
	require.NoError(t, reg.Register("gold"))
	assert.True(t, reg.Exists("gold"))
	assert.False(t, reg.Exists("silver"))
	assert.ErrorIs(t, reg.Register("gold"), token.ErrTokenExists)

	require.NoError(t, reg.Mint("gold", "alice", 100))
	assert.Equal(t, uint64(100), reg.BalanceOf("gold", "alice"))
	assert.ErrorIs(t, reg.Mint("silver", "alice", 1), token.ErrUnknownToken)
	assert.ErrorIs(t, reg.Mint("gold", "alice", 0), token.ErrZeroAmount)
	assert.ErrorIs(t, reg.Mint("gold", "", 1), token.ErrZeroAddress)
}

func TestTransfer(t *testing.T) {
	reg := token.NewRegistry(nil)
	require.NoError(t, reg.Register("gold"))
	require.NoError(t, reg.Mint("gold", "alice", 100))

	require.NoError(t, reg.Transfer("gold", "alice", "bob", 40))
	assert.Equal(t, uint64(60), reg.BalanceOf("gold", "alice"))
	assert.Equal(t, uint64(40), reg.BalanceOf("gold", "bob"))

	assert.ErrorIs(
		t,
		reg.Transfer("gold", "alice", "bob", 61),
		token.ErrInsufficientBalance,
	)
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	reg := token.NewRegistry(nil)
	require.NoError(t, reg.Register("gold"))
	require.NoError(t, reg.Mint("gold", "alice", 100))

	err := reg.TransferFrom("gold", "custody", "alice", "custody", 50)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, reg.Approve("gold", "alice", "custody", 50))
	assert.Equal(t, uint64(50), reg.Allowance("gold", "alice", "custody"))

	require.NoError(t, reg.TransferFrom("gold", "custody", "alice", "custody", 30))
	assert.Equal(t, uint64(70), reg.BalanceOf("gold", "alice"))
	assert.Equal(t, uint64(30), reg.BalanceOf("gold", "custody"))
	assert.Equal(t, uint64(20), reg.Allowance("gold", "alice", "custody"))

	// Remaining allowance cannot cover another 30
	err = reg.TransferFrom("gold", "custody", "alice", "custody", 30)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
}

func TestNativeValue(t *testing.T) {
	reg := token.NewRegistry(nil)
	require.NoError(t, reg.MintNative("alice", 100))
	assert.Equal(t, uint64(100), reg.NativeBalance("alice"))

	require.NoError(t, reg.Pay("alice", "bob", 30))
	assert.Equal(t, uint64(70), reg.NativeBalance("alice"))
	assert.Equal(t, uint64(30), reg.NativeBalance("bob"))

	assert.ErrorIs(t, reg.Pay("alice", "bob", 71), token.ErrInsufficientBalance)
	assert.ErrorIs(t, reg.Pay("alice", "", 1), token.ErrZeroAddress)
	assert.ErrorIs(t, reg.Pay("alice", "bob", 0), token.ErrZeroAmount)
}
