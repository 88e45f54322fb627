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

package trading

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	ordersPlaced prometheus.Counter
	openOrders   prometheus.Gauge
	trades       prometheus.Counter
	volume       prometheus.Counter
}

func newLedgerMetrics(promRegistry prometheus.Registerer) *ledgerMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &ledgerMetrics{
		ordersPlaced: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_trading_orders_placed_total",
			Help: "total orders placed",
		}),
		openOrders: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "umbra_trading_open_orders",
			Help: "orders currently active or partially filled",
		}),
		trades: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_trading_trades_total",
			Help: "total executed trades",
		}),
		volume: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_trading_volume_total",
			Help: "cumulative executed quote value",
		}),
	}
}
