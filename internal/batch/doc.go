// Package batch executes one command against many devices with per-element
// progress tracking.
//
// An operation walks its target list in submission order. Each element is
// resolved to a destination through the device's specification token,
// delivered, and recorded individually, so one failing device never blocks
// the rest of the batch. A configurable throttle delay between elements
// protects downstream brokers from publish bursts.
//
// Operation and element state is persisted through a Repository; the
// Manager additionally mirrors running operations in memory so Progress
// and Cancel are cheap.
package batch
