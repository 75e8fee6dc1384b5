// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/parley-rtc/parley/call"
	"github.com/parley-rtc/parley/monitor"
	"github.com/parley-rtc/parley/transport"
)

const namespace = "parley"

// Collector counts call events. All methods are safe for concurrent
// use, though the Manager delivers events from a single goroutine.
type Collector struct {
	transitions *prometheus.CounterVec
	active      prometheus.Gauge
	finished    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	audioLevel  prometheus.Gauge
	remote      prometheus.Counter
}

var _ call.EventSink = (*Collector)(nil)

// NewCollector registers the call metrics with registerer. A nil
// registerer creates the metrics without registering them.
func NewCollector(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)
	return &Collector{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_state_transitions_total",
			Help:      "Session state transitions, by target state.",
		}, []string{"state"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Sessions currently in the active state.",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_finished_total",
			Help:      "Sessions that reached a terminal state, by state and reason.",
		}, []string{"state", "reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Active duration of finished calls.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"kind"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_errors_total",
			Help:      "Call errors, by error kind.",
		}, []string{"kind"}),
		audioLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_audio_level",
			Help:      "Most recent microphone level, 0 to 100.",
		}),
		remote: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_remote_media_total",
			Help:      "Remote media streams that became ready.",
		}),
	}
}

// OnStateChange counts the transition and tracks the active gauge. A
// terminal state always follows Active when the call was active, so
// leaving Active is detected from the Summary instead.
func (c *Collector) OnStateChange(_ string, state call.State, _ call.Reason) {
	c.transitions.WithLabelValues(state.String()).Inc()
	if state == call.Active {
		c.active.Inc()
	}
}

func (c *Collector) OnRemoteMediaReady(string, *transport.RemoteMedia) {
	c.remote.Inc()
}

func (c *Collector) OnAudioLevel(_ string, sample monitor.Sample) {
	c.audioLevel.Set(float64(sample.Level))
}

func (c *Collector) OnDurationTick(string, int) {}

func (c *Collector) OnError(_ string, kind error, _ string) {
	c.errors.WithLabelValues(errorLabel(kind)).Inc()
}

func (c *Collector) OnNotice(string, string) {}

func (c *Collector) OnSummary(summary call.Summary) {
	c.finished.WithLabelValues(summary.State.String(), summary.Reason.String()).Inc()
	if !summary.StartedAt.IsZero() {
		c.active.Dec()
		c.duration.WithLabelValues(summary.Kind.String()).Observe(float64(summary.Duration))
		c.audioLevel.Set(0)
	}
}

// errorLabel keeps the label set bounded to the known error kinds.
func errorLabel(kind error) string {
	switch kind {
	case call.ErrPermissionDenied:
		return "permission_denied"
	case call.ErrDeviceNotFound:
		return "device_not_found"
	case call.ErrTransportNegotiationFailed:
		return "transport_negotiation_failed"
	case call.ErrRemoteDisconnected:
		return "remote_disconnected"
	default:
		return "other"
	}
}
