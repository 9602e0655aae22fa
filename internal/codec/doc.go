// Package codec converts between wire payloads and the canonical event and
// command representations used throughout the pipeline.
//
// Two binary formats are supported: a protocol-buffer encoding (the default
// used by device SDKs) and a JSON encoding. Event sources bind a decoder,
// command destinations bind an encoder; both are resolved from the Registry
// at start-up so unknown formats fail before any traffic flows.
//
// Error taxonomy:
//   - ErrFormat: bytes do not conform to the selected format (per-message,
//     non-fatal; the source drops the message and counts it)
//   - ErrInvalidCommand: the caller asked to encode a command no format can
//     represent (a programming error on the caller's side)
package codec
