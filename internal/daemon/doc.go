// Package daemon coordinates the long-running Hillview upload process.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple
// instances, and exposes queue maintenance helpers for the CLI.
//
// Keep orchestration logic here: individual workflow steps should live
// in their respective packages while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
