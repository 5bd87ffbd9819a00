// Package recorder persists raw stream frames to Postgres.
//
// A Writer consumes market or order change events from a buffered queue,
// batches them, and inserts with ON CONFLICT DO NOTHING keyed on the
// stream clock, so frames replayed after a reconnect deduplicate instead
// of duplicating rows. Enqueue never blocks the stream: when the buffer
// is full the frame is dropped and counted.
package recorder
