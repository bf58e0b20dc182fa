// Package api implements the submission and query facade over the job
// store, algorithm registry, and result store. The HTTP server and the
// daemon's IPC surface are thin shells around this package, so behavior
// stays identical no matter how a request arrives.
package api
