// Package queue persists pending captures in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, the
// queue capacity bound, attempt counting, retry scheduling, and the
// lifetime counters behind the public queue statistics. Every status or
// attempt mutation is written through so a killed process resumes from
// its last durable state without losing or duplicating captures.
//
// Rows exist only while a capture is active (pending or uploading);
// terminal transitions delete the row, release the image payload, and
// bump the matching lifetime counter in the same transaction.
package queue
