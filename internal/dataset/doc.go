// Package dataset provides read-only access to registered seismic volumes.
// Upload and catalog management belong to a separate subsystem; the
// pipeline only opens volumes by id and hands algorithms an immutable view.
package dataset
