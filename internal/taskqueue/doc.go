// Package taskqueue abstracts where analysis tasks execute. The in-process
// adapter runs them on a worker pool inside the daemon; the NATS adapter
// ships them to external worker processes over a broker. Both drive the
// same Executor, so validation, timeouts, panic isolation, and result
// persistence behave identically.
package taskqueue
