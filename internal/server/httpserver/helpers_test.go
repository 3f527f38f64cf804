package httpserver

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/yndnr/servus-go/internal/telemetry/metric"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func slogJSON(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

// observations returns the sample count of one histogram series.
func observations(t *testing.T, reg *metric.Registry, method, path, status string) uint64 {
	t.Helper()

	var n uint64
	forEachSeries(t, reg, func(m *dto.Metric, labels map[string]string) {
		if labels["method"] == method && labels["path"] == path && labels["status"] == status {
			n += m.GetHistogram().GetSampleCount()
		}
	})
	return n
}

// totalObservations returns the sample count across every series.
func totalObservations(t *testing.T, reg *metric.Registry) uint64 {
	t.Helper()

	var n uint64
	forEachSeries(t, reg, func(m *dto.Metric, _ map[string]string) {
		n += m.GetHistogram().GetSampleCount()
	})
	return n
}

// seriesPaths returns the path label of every series with observations.
func seriesPaths(t *testing.T, reg *metric.Registry) []string {
	t.Helper()

	var paths []string
	forEachSeries(t, reg, func(m *dto.Metric, labels map[string]string) {
		if m.GetHistogram().GetSampleCount() > 0 {
			paths = append(paths, labels["path"])
		}
	})
	return paths
}

func forEachSeries(t *testing.T, reg *metric.Registry, fn func(*dto.Metric, map[string]string)) {
	t.Helper()

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != metric.RequestDurationName {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			fn(m, labels)
		}
	}
}

// startHost runs h.Serve in the background and waits until it is running.
// The returned channel yields Serve's result.
func startHost(t *testing.T, ctx context.Context, h *Host) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- h.Serve(ctx) }()

	select {
	case <-h.Ready():
		if h.State() == StateErrored {
			t.Fatalf("Serve() failed to start: %v", waitServe(t, errCh))
		}
	case err := <-errCh:
		t.Fatalf("Serve() returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not become ready")
	}
	return errCh
}

// waitServe waits for Serve's result.
func waitServe(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return")
		return nil
	}
}
