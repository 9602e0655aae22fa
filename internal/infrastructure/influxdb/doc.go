// Package influxdb persists canonical device events to InfluxDB.
//
// The client wraps the official v2 SDK's non-blocking write API: points are
// batched in memory and flushed asynchronously, so the inbound processing
// chain is never blocked by the sink. Async write failures surface through
// an optional error callback and are logged, not propagated.
//
// The sink is optional; when disabled in configuration the pipeline falls
// back to a log-only event sink.
package influxdb
