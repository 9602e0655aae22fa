// Package registration admits devices into the pipeline on first contact.
//
// Registration is policy-driven: unknown devices are either created with a
// supplied or auto-assigned site token, or rejected, depending on the
// configured Policy. Known devices always pass, so registration requests
// are idempotent.
//
// The Manager keeps an in-memory cache of records over a Repository so the
// per-event admission check on the hot path is a read-locked map lookup.
// Records handed out by the Manager are always copies.
package registration
