// Package notifications delivers capture queue events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured
// in config.toml and gracefully degrades to a no-op when notifications
// are disabled, so workflow code never needs to branch on configuration.
//
// Extend this package if you need alternative transports; all workflow
// code depends only on the simple Service interface.
package notifications
