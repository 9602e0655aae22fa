// Package pipeline moves device events from broker subscriptions to event
// sinks.
//
// Sources decode raw payloads into canonical events and feed a single
// bounded queue. A fixed pool of dispatcher workers pulls from the queue
// and runs the processing chain: registration admission followed by sink
// fan-out. The queue bound is the backpressure mechanism; when workers
// fall behind, Enqueue blocks, the source's message handler stalls, and
// the broker connection slows down in turn.
//
// Shutdown is intake-first: sources unsubscribe, then the dispatcher
// drains the backlog within a deadline and discards whatever is left.
package pipeline
