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

package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type busMetrics struct {
	eventsTotal   *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	subscribers   *prometheus.GaugeVec
}

func newBusMetrics(promRegistry prometheus.Registerer) *busMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &busMetrics{
		eventsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umbra_event_published_total",
				Help: "total events published per type",
			},
			[]string{"type"},
		),
		eventsDropped: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "umbra_event_dropped_total",
				Help: "async events dropped due to a full queue",
			},
			[]string{"type"},
		),
		subscribers: promautoFactory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "umbra_event_subscribers",
				Help: "current subscriber count per event type",
			},
			[]string{"type"},
		),
	}
}
