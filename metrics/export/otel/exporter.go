package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authlife"
	"github.com/MrEthical07/authlife/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authlife.MetricsSnapshot
	AuditDropped() uint64
}

// Option configures an [OTelExporter].
type Option func(*OTelExporter)

// WithAttributes adds constant attributes to every observation, e.g. the
// deployment environment or instance name.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(e *OTelExporter) {
		e.attrs = append(e.attrs, attrs...)
	}
}

type counterInstrument struct {
	id  authlife.MetricID
	ins metric.Int64ObservableCounter
}

// histogramInstrument reports cumulative bucket counts on one gauge keyed by
// an "le" attribute, mirroring the Prometheus bucket layout.
type histogramInstrument struct {
	id      authlife.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	le      []attribute.KeyValue
}

// OTelExporter owns the callback registration for one metrics source.
type OTelExporter struct {
	source       metricsSource
	attrs        []attribute.KeyValue
	counters     []counterInstrument
	histograms   []histogramInstrument
	auditDropped metric.Int64ObservableCounter
	registration metric.Registration
}

// NewOTelExporter registers instruments for engine on meter. Close
// unregisters the callback.
func NewOTelExporter(meter metric.Meter, engine *authlife.Engine, opts ...Option) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine, opts...)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource, opts ...Option) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	for _, opt := range opts {
		opt(e)
	}

	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ins: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{sample}"))
		if err != nil {
			return nil, fmt.Errorf("create histogram buckets %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
			metric.WithUnit("{sample}"))
		if err != nil {
			return nil, fmt.Errorf("create histogram count %s: %w", def.Name, err)
		}

		h := histogramInstrument{id: def.ID, buckets: buckets, count: count}
		for _, label := range internaldefs.HistogramBoundLabels {
			h.le = append(h.le, attribute.String("le", label))
		}
		e.histograms = append(e.histograms, h)
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	base := metric.WithAttributes(e.attrs...)
	snap := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]), base)
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, le := range h.le {
			attrs := append(append([]attribute.KeyValue(nil), e.attrs...), le)
			o.ObserveInt64(h.buckets, int64(cumulative[i]), metric.WithAttributes(attrs...))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]), base)
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), base)
	return nil
}

// Close unregisters the callback. It is safe on a nil exporter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
