package otelmetrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goVault "github.com/MrEthical07/goVault"
)

type staticSource struct {
	snapshot goVault.MetricsSnapshot
}

func (s staticSource) MetricsSnapshot() goVault.MetricsSnapshot { return s.snapshot }

func TestRegisterObservesCounters(t *testing.T) {
	source := staticSource{snapshot: goVault.MetricsSnapshot{Counters: map[goVault.MetricID]uint64{
		goVault.MetricLoginSuccess: 7,
		goVault.MetricTokenIssued:  3,
	}}}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	registration, err := Register(provider.Meter("test"), source)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer registration.Unregister()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	values := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				values[m.Name] = point.Value
			}
		}
	}

	if got := values["govault.login_success"]; got != 7 {
		t.Fatalf("govault.login_success = %d, want 7", got)
	}
	if got := values["govault.token_issued"]; got != 3 {
		t.Fatalf("govault.token_issued = %d, want 3", got)
	}
	if _, ok := values["govault.registration"]; !ok {
		t.Fatal("expected every counter registered, registration missing")
	}
}
