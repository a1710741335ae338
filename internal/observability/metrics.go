/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package observability holds the Prometheus collectors of the drifterd services.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector bundles the metrics of the packet and glider pipelines. A nil
// *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	PacketsReceived   prometheus.Counter
	ParseErrors       prometheus.Counter
	FixesStored       prometheus.Counter
	ActiveConnections prometheus.Gauge
	Forwards          *prometheus.CounterVec

	DialogLines     prometheus.Counter
	GotosGenerated  prometheus.Counter
	UpdateDurations prometheus.Histogram
	SinkDeliveries  *prometheus.CounterVec
	ServiceRestarts *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.PacketsReceived, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drifter_packets_received_total",
		Help: "Number of SBD packets read from satellite gateway connections.",
	}), "drifter_packets_received_total"); err != nil {
		return nil, err
	}
	if c.ParseErrors, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drifter_packet_parse_errors_total",
		Help: "Number of packets that failed to parse as Iridium MO messages.",
	}), "drifter_packet_parse_errors_total"); err != nil {
		return nil, err
	}
	if c.FixesStored, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drifter_fixes_stored_total",
		Help: "Number of drifter fixes written to the MOM table.",
	}), "drifter_fixes_stored_total"); err != nil {
		return nil, err
	}
	if c.ActiveConnections, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drifter_connections_active",
		Help: "Number of gateway connections currently being read.",
	}), "drifter_connections_active"); err != nil {
		return nil, err
	}
	if c.Forwards, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drifter_forwards_total",
		Help: "Packets relayed to the forward target, labeled by result.",
	}, []string{"result"}), "drifter_forwards_total"); err != nil {
		return nil, err
	}
	if c.DialogLines, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glider_dialog_lines_total",
		Help: "Number of glider dialog lines processed.",
	}), "glider_dialog_lines_total"); err != nil {
		return nil, err
	}
	if c.GotosGenerated, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glider_gotos_generated_total",
		Help: "Number of goto files generated.",
	}), "glider_gotos_generated_total"); err != nil {
		return nil, err
	}
	if c.UpdateDurations, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "glider_update_duration_seconds",
		Help:    "Time from surfacing flag to goto plan built.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "glider_update_duration_seconds"); err != nil {
		return nil, err
	}
	if c.SinkDeliveries, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glider_goto_sink_deliveries_total",
		Help: "Goto deliveries per sink, labeled by sink and result.",
	}, []string{"sink", "result"}), "glider_goto_sink_deliveries_total"); err != nil {
		return nil, err
	}
	if c.ServiceRestarts, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drifterd_service_exits_total",
		Help: "Supervised service exits, labeled by service.",
	}, []string{"service"}), "drifterd_service_exits_total"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// PacketReceived counts one packet read from a connection.
func (c *Collector) PacketReceived() {
	if c == nil {
		return
	}
	c.PacketsReceived.Inc()
}

// ParseFailed counts one unparsable packet.
func (c *Collector) ParseFailed() {
	if c == nil {
		return
	}
	c.ParseErrors.Inc()
}

// FixStored counts one stored fix.
func (c *Collector) FixStored() {
	if c == nil {
		return
	}
	c.FixesStored.Inc()
}

// ConnectionOpened and ConnectionClosed track in-flight connections.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.ActiveConnections.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.ActiveConnections.Dec()
}

// Forwarded records one relay attempt.
func (c *Collector) Forwarded(err error) {
	if c == nil {
		return
	}
	c.Forwards.WithLabelValues(result(err)).Inc()
}

// DialogLine counts one processed dialog line.
func (c *Collector) DialogLine() {
	if c == nil {
		return
	}
	c.DialogLines.Inc()
}

// GotoGenerated records a built goto plan and how long the update took.
func (c *Collector) GotoGenerated(elapsed time.Duration) {
	if c == nil {
		return
	}
	c.GotosGenerated.Inc()
	c.UpdateDurations.Observe(elapsed.Seconds())
}

// Delivered records one sink delivery.
func (c *Collector) Delivered(sink string, err error) {
	if c == nil {
		return
	}
	c.SinkDeliveries.WithLabelValues(sink, result(err)).Inc()
}

// ServiceExited counts an exit of a supervised service.
func (c *Collector) ServiceExited(service string) {
	if c == nil {
		return
	}
	c.ServiceRestarts.WithLabelValues(service).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
