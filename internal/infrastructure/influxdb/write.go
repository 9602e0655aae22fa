package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteEvent records a canonical device event as a time-series point.
//
// The write is non-blocking; data is batched and sent asynchronously, so
// this never stalls the dispatcher worker that called it.
//
// Parameters:
//   - hardwareID: Device hardware identifier
//   - eventType: Event classification (measurement, alert, ...)
//   - sourceID: Event source the message arrived on
//   - payloadSize: Size of the opaque payload in bytes
//   - receivedAt: Arrival timestamp of the event
func (c *Client) WriteEvent(hardwareID, eventType, sourceID string, payloadSize int, receivedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_events",
		map[string]string{
			"hardware_id": hardwareID,
			"event_type":  eventType,
			"source_id":   sourceID,
		},
		map[string]interface{}{
			"payload_bytes": payloadSize,
		},
		receivedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
