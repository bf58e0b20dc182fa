// Package results stores the output artifacts of succeeded jobs,
// addressable by job id, with at-most-one artifact per job and a
// TTL-driven retention sweep.
package results
