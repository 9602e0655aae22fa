// Package metrics provides Prometheus instrumentation for the pipeline.
//
// One Metrics value holds every collector; components receive it at
// construction and update the relevant counters and gauges. Exposition is
// optional and served on a dedicated listener when enabled in config.
package metrics
