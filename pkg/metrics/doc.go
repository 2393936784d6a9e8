// Package metrics provides Prometheus instrumentation for gostream components.
//
// # Overview
//
// A Registry groups the collectors used across the library:
//   - Streams (chunks and bytes per side, buffered length, backpressure and
//     drain events, errors by code, teardowns)
//   - Pipelines (runs by outcome, duration)
//   - The native bridge (pulls, adaptive size increases, current size hint)
//   - Worker pools (size, active workers, queued and executed tasks)
//
// # Quick Start
//
// Hand a registry to the components that should report:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//
//	r := stream.NewReadable(loop, stream.ReadableConfig{
//		Name:    "upload",
//		Metrics: reg,
//		...
//	})
//
// A nil *Registry disables reporting, so components never need a separate
// on/off switch.
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation, for example in tests, and
// NewRegistryWithConfig to change the namespace or add constant labels:
//
//	registry := metrics.NewRegistryWithConfig(metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "ingest",
//		Labels:    prometheus.Labels{"service": "collector"},
//	})
package metrics
