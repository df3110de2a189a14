// Package stats maintains the queue statistics surfaced to the UI and
// CLI. Counters are updated incrementally on mutation events rather
// than recomputed from the store, and lifetime totals never decrease.
package stats
