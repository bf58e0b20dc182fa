// Package registry holds the capability table of seismic algorithms.
// Each entry binds a name to a parameter schema and a pure execute
// function; validation happens here exactly once, before a job may
// leave the pending state.
package registry
