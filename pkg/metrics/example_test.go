package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates recording stream figures on a private registry.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	registry.StreamChunks.WithLabelValues("upload", "writable").Add(3)
	registry.StreamBytes.WithLabelValues("upload", "writable").Add(4096)
	registry.BackpressureEvents.WithLabelValues("upload").Inc()

	fmt.Println(testutil.ToFloat64(registry.StreamBytes.WithLabelValues("upload", "writable")))
	fmt.Println(testutil.ToFloat64(registry.BackpressureEvents.WithLabelValues("upload")))

	// Output:
	// 4096
	// 1
}

// Example_customNamespace demonstrates namespacing and constant labels.
func Example_customNamespace() {
	reg := prometheus.NewRegistry()
	registry := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "ingest",
		Labels:    prometheus.Labels{"service": "collector"},
	})

	registry.PipelineRuns.WithLabelValues("nightly", "ok").Inc()

	expected := `
# HELP ingest_pipeline_runs_total Number of completed pipelines by outcome
# TYPE ingest_pipeline_runs_total counter
ingest_pipeline_runs_total{pipeline="nightly",result="ok",service="collector"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "ingest_pipeline_runs_total")
	fmt.Println(err == nil)

	// Output: true
}

// Example_disabled shows that a disabled config yields a nil registry.
func Example_disabled() {
	registry := NewRegistryWithConfig(Config{Enabled: false})
	fmt.Println(registry == nil)

	// Output: true
}
