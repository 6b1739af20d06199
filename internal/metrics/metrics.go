// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "gbe_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the box's collectors in a private registry. All methods
// are safe on a nil *Metrics so components work without one.
type Metrics struct {
	reg *prometheus.Registry

	duty          *prometheus.GaugeVec
	lightsOn      prometheus.Gauge
	outputErrors  *prometheus.CounterVec
	sensorUp      *prometheus.GaugeVec
	sensorFaults  *prometheus.CounterVec
	reading       *prometheus.GaugeVec
	brokerUp      prometheus.Gauge
	connAttempts  prometheus.Counter
	publishes     *prometheus.CounterVec
	backlogSize   prometheus.Gauge
	statusEvents  *prometheus.CounterVec
	watchdogFeeds prometheus.Counter
	clockTrusted  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		duty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "output_duty",
			Help: "Current PWM duty per output channel (0-255)",
		}, []string{"channel"}),
		lightsOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "lights_on",
			Help: "1 while the light window is active",
		}),
		outputErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "output_write_errors_total",
			Help: "Failed PWM writes per channel",
		}, []string{"channel"}),
		sensorUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "sensor_connected",
			Help: "1 while the sensor is connected",
		}, []string{"sensor"}),
		sensorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "sensor_faults_total",
			Help: "Sensor disconnect transitions",
		}, []string{"sensor"}),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "sensor_reading",
			Help: "Latest sensor value",
		}, []string{"field"}),
		brokerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "broker_connected",
			Help: "1 while the MQTT connection is up",
		}),
		connAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "broker_connect_attempts_total",
			Help: "MQTT connection attempts",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "telemetry_publish_total",
			Help: "Telemetry publish attempts by kind and result",
		}, []string{"kind", "result"}),
		backlogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "backlog_entries",
			Help: "Snapshots waiting in the backlog",
		}),
		statusEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "status_events_total",
			Help: "Status events pushed to the indicator",
		}, []string{"event"}),
		watchdogFeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "watchdog_feeds_total",
			Help: "Hardware watchdog feeds",
		}),
		clockTrusted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "clock_trusted",
			Help: "1 once a trusted time source has set the clock",
		}),
	}
	m.reg.MustRegister(
		m.duty, m.lightsOn, m.outputErrors,
		m.sensorUp, m.sensorFaults, m.reading,
		m.brokerUp, m.connAttempts, m.publishes, m.backlogSize,
		m.statusEvents, m.watchdogFeeds, m.clockTrusted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (m *Metrics) SetDuty(channel string, duty uint8) {
	if m == nil {
		return
	}
	m.duty.WithLabelValues(channel).Set(float64(duty))
}

func (m *Metrics) SetLightsOn(on bool) {
	if m == nil {
		return
	}
	m.lightsOn.Set(boolGauge(on))
}

func (m *Metrics) OutputError(channel string) {
	if m == nil {
		return
	}
	m.outputErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) SetSensorConnected(sensor string, up bool) {
	if m == nil {
		return
	}
	m.sensorUp.WithLabelValues(sensor).Set(boolGauge(up))
	if !up {
		m.sensorFaults.WithLabelValues(sensor).Inc()
	}
}

func (m *Metrics) SetReading(field string, v float64) {
	if m == nil {
		return
	}
	m.reading.WithLabelValues(field).Set(v)
}

func (m *Metrics) SetBrokerConnected(up bool) {
	if m == nil {
		return
	}
	m.brokerUp.Set(boolGauge(up))
}

func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connAttempts.Inc()
}

// Publish counts a telemetry publish. kind is "fresh" or "replay".
func (m *Metrics) Publish(kind string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.publishes.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetBacklog(n int) {
	if m == nil {
		return
	}
	m.backlogSize.Set(float64(n))
}

func (m *Metrics) StatusEvent(event string) {
	if m == nil {
		return
	}
	m.statusEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) WatchdogFed() {
	if m == nil {
		return
	}
	m.watchdogFeeds.Inc()
}

func (m *Metrics) SetClockTrusted(trusted bool) {
	if m == nil {
		return
	}
	m.clockTrusted.Set(boolGauge(trusted))
}
