// Package daemon wires the long-running strata process: single-instance
// locking, the dispatcher lifecycle, the HTTP API, and the artifact
// retention sweep. The cmd binaries stay thin; everything testable lives
// here or below.
package daemon
