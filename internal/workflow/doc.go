// Package workflow drives the background upload loop. A single worker
// drains the capture queue oldest-first, claiming one item at a time,
// uploading it, and either releasing it on success or rescheduling it
// with backoff on transient failure. The manager owns the loop's
// lifecycle and publishes statistics and lifecycle notifications.
package workflow
