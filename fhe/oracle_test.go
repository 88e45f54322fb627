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

package fhe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbralabs-io/umbra/fhe"
	"go.uber.org/goleak"
)

func TestOracleAsyncDecryption(t *testing.T) {
	defer goleak.VerifyNone(t)
	scheme := newTestScheme(t)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	defer oracle.Stop()

	ct, err := scheme.Encrypt(1234)
	require.NoError(t, err)

	results := make(chan fhe.Result, 1)
	reqID, err := oracle.RequestDecryption(ct, func(res fhe.Result) {
		results <- res
	})
	require.NoError(t, err)
	require.NotZero(t, reqID)

	select {
	case res := <-results:
		assert.Equal(t, reqID, res.RequestID)
		assert.Equal(t, uint64(1234), res.Plaintext)
		assert.True(t, oracle.VerifyResult(res))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for decryption result")
	}
}

func TestOracleRequestIDsIncrease(t *testing.T) {
	scheme := newTestScheme(t)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	defer oracle.Stop()

	ct, err := scheme.Encrypt(1)
	require.NoError(t, err)
	deliver := func(fhe.Result) {}
	first, err := oracle.RequestDecryption(ct, deliver)
	require.NoError(t, err)
	second, err := oracle.RequestDecryption(ct, deliver)
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestOracleRejectsInvalidRequests(t *testing.T) {
	scheme := newTestScheme(t)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	defer oracle.Stop()

	ct, err := scheme.Encrypt(1)
	require.NoError(t, err)
	_, err = oracle.RequestDecryption(ct, nil)
	assert.ErrorIs(t, err, fhe.ErrNilCallback)

	other := newTestScheme(t)
	foreign, err := other.Encrypt(1)
	require.NoError(t, err)
	_, err = oracle.RequestDecryption(foreign, func(fhe.Result) {})
	assert.ErrorIs(t, err, fhe.ErrUnknownCiphertext)
}

func TestOracleVerifyRejectsTamperedResult(t *testing.T) {
	scheme := newTestScheme(t)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	defer oracle.Stop()

	ct, err := scheme.Encrypt(50)
	require.NoError(t, err)
	results := make(chan fhe.Result, 1)
	_, err = oracle.RequestDecryption(ct, func(res fhe.Result) {
		results <- res
	})
	require.NoError(t, err)
	res := <-results
	require.True(t, oracle.VerifyResult(res))

	tampered := res
	tampered.Plaintext = 5000
	assert.False(t, oracle.VerifyResult(tampered))
}

func TestOracleCompareNow(t *testing.T) {
	scheme := newTestScheme(t)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	defer oracle.Stop()

	a, err := scheme.Encrypt(10)
	require.NoError(t, err)
	b, err := scheme.Encrypt(20)
	require.NoError(t, err)

	cond, err := scheme.Lt(a, b)
	require.NoError(t, err)
	ok, err := oracle.CompareNow(cond)
	require.NoError(t, err)
	assert.True(t, ok)

	cond, err = scheme.Gt(a, b)
	require.NoError(t, err)
	ok, err = oracle.CompareNow(cond)
	require.NoError(t, err)
	assert.False(t, ok)

	// Non-boolean ciphertexts are rejected
	_, err = oracle.CompareNow(a)
	assert.ErrorIs(t, err, fhe.ErrNotBoolean)
}

func TestOracleStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	scheme := newTestScheme(t)
	oracle := fhe.NewOracle(fhe.OracleConfig{Scheme: scheme})
	oracle.Stop()

	ct, err := scheme.Encrypt(1)
	require.NoError(t, err)
	_, err = oracle.RequestDecryption(ct, func(fhe.Result) {})
	assert.ErrorIs(t, err, fhe.ErrOracleStopped)
	_, err = oracle.CompareNow(ct)
	assert.ErrorIs(t, err, fhe.ErrOracleStopped)

	// Stop is idempotent
	oracle.Stop()
}
