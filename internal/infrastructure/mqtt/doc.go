// Package mqtt provides MQTT client connectivity for FieldComm Core.
//
// This package manages:
//   - Broker connections for event sources (inbound) and command
//     destinations (outbound), one client per configured endpoint
//   - Bounded initial connection attempts with exponential backoff
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - TLS connections verified against a configured PEM trust store
//
// # Architecture
//
// MQTT is the pub/sub transport between FieldComm and the device fleet.
// Devices publish encoded event payloads to source topics and subscribe to
// per-device command topics computed by the parameter extractor.
//
//	Devices → MQTT Broker → Event Sources → Inbound Dispatcher
//	Command Destinations → MQTT Broker → Devices
//
// # Security Considerations
//
//   - TLS is required for production deployments (protocol: tls)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Transport)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("fieldcomm/input/events", 1,
//	    func(topic string, payload []byte) error {
//	        return dispatcher.Enqueue(ctx, decode(payload))
//	    })
package mqtt
