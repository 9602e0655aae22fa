// Package command delivers outbound commands to devices.
//
// Delivery is a three-step chain: the Router picks a Destination by the
// target device's specification token, the Destination encodes the command
// with its configured codec, and the TopicExtractor expands the endpoint's
// topic expression with the device's hardware id to produce the publish
// topic.
//
// All configuration (topic expressions, routing table) is validated at
// construction time so misconfiguration fails start-up instead of
// surfacing per command.
package command
