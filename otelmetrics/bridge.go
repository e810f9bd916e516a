// Package otelmetrics bridges the engine's internal counters onto an
// OpenTelemetry meter so they flow into whatever exporter the host
// application configured.
package otelmetrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	goVault "github.com/MrEthical07/goVault"
)

const meterName = "github.com/MrEthical07/goVault"

// Source is the counter snapshot surface; [goVault.Engine] satisfies it.
type Source interface {
	MetricsSnapshot() goVault.MetricsSnapshot
}

// Register binds every engine counter to the meter as an observable
// counter named "govault.<counter>". Counters are read on each collection
// cycle; unregister via the returned registration.
func Register(meter metric.Meter, source Source) (metric.Registration, error) {
	ids := goVault.MetricIDs()
	counters := make(map[goVault.MetricID]metric.Int64ObservableCounter, len(ids))
	observables := make([]metric.Observable, 0, len(ids))
	for _, id := range ids {
		counter, err := meter.Int64ObservableCounter("govault." + id.Name())
		if err != nil {
			return nil, err
		}
		counters[id] = counter
		observables = append(observables, counter)
	}

	return meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := source.MetricsSnapshot()
		for id, counter := range counters {
			observer.ObserveInt64(counter, int64(snapshot.Counters[id]))
		}
		return nil
	}, observables...)
}

// RegisterGlobal registers against the process-global meter provider.
func RegisterGlobal(source Source) (metric.Registration, error) {
	return Register(otel.Meter(meterName), source)
}
