// Zaparoo Timekeeper
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Timekeeper.
//
// Zaparoo Timekeeper is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Timekeeper is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Timekeeper.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes Prometheus counters for the time pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe to call on a nil receiver so components can be
// built without instrumentation.
type Metrics struct {
	gatherer       prometheus.Gatherer
	ntpQueries     *prometheus.CounterVec
	pipelinePasses *prometheus.CounterVec
	stageAborts    *prometheus.CounterVec
	apiRequests    *prometheus.CounterVec
	timeSteps      prometheus.Counter
	zoneChanges    prometheus.Counter
	validity       prometheus.Gauge
	retryArmed     prometheus.Gauge
}

// New registers all collectors on reg. Use prometheus.NewRegistry in tests
// to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		ntpQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeeper_ntp_queries_total",
			Help: "NTP helper queries by result",
		}, []string{"result"}),
		pipelinePasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeeper_nitz_pipeline_passes_total",
			Help: "NITZ pipeline runs by kind",
		}, []string{"pipeline"}),
		stageAborts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeeper_nitz_stage_aborts_total",
			Help: "NITZ pipeline runs aborted by a stage",
		}, []string{"stage"}),
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeeper_api_requests_total",
			Help: "API requests by method",
		}, []string{"method"}),
		timeSteps: f.NewCounter(prometheus.CounterOpts{
			Name: "timekeeper_system_time_steps_total",
			Help: "Number of times the system clock was stepped",
		}),
		zoneChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "timekeeper_zone_changes_total",
			Help: "Number of times the active time zone changed",
		}),
		validity: f.NewGauge(prometheus.GaugeOpts{
			Name: "timekeeper_nitz_validity",
			Help: "Persisted validity state: 0 valid, 1 invalid user not set, 2 invalid user set",
		}),
		retryArmed: f.NewGauge(prometheus.GaugeOpts{
			Name: "timekeeper_nitz_retry_armed",
			Help: "1 while a NITZ retry timer is pending",
		}),
	}
}

func (m *Metrics) NTPQuery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ntpQueries.WithLabelValues("ok").Inc()
	} else {
		m.ntpQueries.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) PipelinePass(kind string) {
	if m == nil {
		return
	}
	m.pipelinePasses.WithLabelValues(kind).Inc()
}

func (m *Metrics) StageAbort(stage string) {
	if m == nil {
		return
	}
	m.stageAborts.WithLabelValues(stage).Inc()
}

func (m *Metrics) APIRequest(method string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method).Inc()
}

func (m *Metrics) TimeStepped() {
	if m == nil {
		return
	}
	m.timeSteps.Inc()
}

func (m *Metrics) ZoneChanged() {
	if m == nil {
		return
	}
	m.zoneChanges.Inc()
}

func (m *Metrics) SetValidity(state int) {
	if m == nil {
		return
	}
	m.validity.Set(float64(state))
}

func (m *Metrics) SetRetryArmed(armed bool) {
	if m == nil {
		return
	}
	if armed {
		m.retryArmed.Set(1)
	} else {
		m.retryArmed.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
