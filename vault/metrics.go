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

package vault

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type managerMetrics struct {
	vaults    prometheus.Gauge
	deposited prometheus.Counter
	released  prometheus.Counter
}

func newManagerMetrics(promRegistry prometheus.Registerer) *managerMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &managerMetrics{
		vaults: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "umbra_vault_count",
			Help: "number of vaults under custody",
		}),
		deposited: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_vault_deposited_total",
			Help: "cumulative tokens deposited into vaults",
		}),
		released: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_vault_released_total",
			Help: "cumulative tokens released from vaults",
		}),
	}
}
