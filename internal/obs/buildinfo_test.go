package obs

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo("1.0.0", "abc123")
	InitBuildInfo("1.0.1", "def456")

	ch := make(chan prometheus.Metric, 4)
	buildInfo.Collect(ch)
	close(ch)
	if len(ch) != 1 {
		t.Fatalf("expected one build_info series, got %d", len(ch))
	}

	var m dto.Metric
	if err := buildInfo.WithLabelValues("1.0.1", "def456", runtime.Version()).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected build_info 1, got %v", got)
	}
}
