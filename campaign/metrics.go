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

package campaign

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	liveCampaigns prometheus.Gauge
	contributions prometheus.Counter
	revealedTotal prometheus.Counter
	claims        prometheus.Counter
}

func newEngineMetrics(promRegistry prometheus.Registerer) *engineMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &engineMetrics{
		liveCampaigns: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "umbra_campaign_live",
			Help: "campaigns currently accepting contributions",
		}),
		contributions: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_campaign_contributions_total",
			Help: "total secret contributions recorded",
		}),
		revealedTotal: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_campaign_revealed_total",
			Help: "cumulative revealed raise totals across settled campaigns",
		}),
		claims: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "umbra_campaign_claims_total",
			Help: "total successful reward claims",
		}),
	}
}
