// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package procvisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "procvisor"

// metrics are the supervisor's prometheus collectors.  They belong to a
// Supervisor rather than the default registry, so that several
// supervisors (as in tests) can coexist.
type metrics struct {
	launches      *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	exits         *prometheus.CounterVec
	running       *prometheus.GaugeVec
	lastExitCode  *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "launches_total",
				Help:      "total number of process launch attempts",
			},
			[]string{"name"},
		),
		spawnFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "spawn_failures_total",
				Help:      "total number of launches that failed to spawn",
			},
			[]string{"name"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "exits_total",
				Help:      "total number of process exits",
			},
			[]string{"name"},
		),
		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "running",
				Help:      "1 while the process is running, 0 otherwise",
			},
			[]string{"name"},
		),
		lastExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_exit_code",
				Help:      "exit code of the most recent exit",
			},
			[]string{"name"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.launches,
			m.spawnFailures,
			m.exits,
			m.running,
			m.lastExitCode,
		)
	}
	return m
}

func (m *metrics) launched(name string) {
	m.launches.WithLabelValues(name).Inc()
}

func (m *metrics) started(name string) {
	m.running.WithLabelValues(name).Set(1)
}

func (m *metrics) spawnFailed(name string) {
	m.spawnFailures.WithLabelValues(name).Inc()
}

func (m *metrics) exited(name string, code int) {
	m.exits.WithLabelValues(name).Inc()
	m.running.WithLabelValues(name).Set(0)
	m.lastExitCode.WithLabelValues(name).Set(float64(code))
}
