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

package umbra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Empty(t, cfg.dataDir)
	assert.Empty(t, cfg.admin)
	assert.False(t, cfg.tracing)
}

func TestNewConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithAdmin("admin"),
		WithFeeCollector("collector"),
		WithDataDir("/tmp/umbra"),
		WithSupportedTokens("base-token", "quote-token"),
		WithTradingFeeRate(25),
		WithServiceFeeRate(40),
		WithLockDuration(time.Hour),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, "admin", string(cfg.admin))
	assert.Equal(t, "collector", string(cfg.feeCollector))
	assert.Equal(t, "/tmp/umbra", cfg.dataDir)
	assert.Len(t, cfg.supportedTokens, 2)
	assert.Equal(t, uint64(25), cfg.tradingFeeRateBps)
	assert.Equal(t, uint64(40), cfg.serviceFeeRateBps)
	assert.Equal(t, time.Hour, cfg.lockDuration)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestNodeRequiresAdmin(t *testing.T) {
	_, err := New(NewConfig())
	require.Error(t, err)
	_, err = New(NewConfig(WithAdmin("admin")))
	require.Error(t, err)
	node, err := New(NewConfig(
		WithAdmin("admin"),
		WithFeeCollector("collector"),
	))
	require.NoError(t, err)
	require.NoError(t, node.Stop())
}

func TestNodeRejectsBadSchemeKey(t *testing.T) {
	_, err := New(NewConfig(
		WithAdmin("admin"),
		WithFeeCollector("collector"),
		WithSchemeKey([]byte("short")),
	))
	require.Error(t, err)
}
