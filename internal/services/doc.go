// Package services defines the shared error taxonomy for the pipeline.
//
// Errors are tagged with sentinel markers (validation, transient, fatal,
// not-found) so the dispatcher can classify failures without inspecting
// message strings. Wrap attaches component/operation context while
// preserving the marker for errors.Is checks.
package services
