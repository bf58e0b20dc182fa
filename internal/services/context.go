package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	datasetIDKey
	algorithmKey
	requestIDKey
)

// WithJobID attaches a job identifier to the context for logging.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts a job identifier previously stored with WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey).(string)
	return id, ok && id != ""
}

// WithDatasetID attaches a dataset identifier to the context for logging.
func WithDatasetID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, datasetIDKey, id)
}

// DatasetIDFromContext extracts a dataset identifier from the context.
func DatasetIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(datasetIDKey).(string)
	return id, ok && id != ""
}

// WithAlgorithm attaches an algorithm name to the context for logging.
func WithAlgorithm(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, algorithmKey, name)
}

// AlgorithmFromContext extracts an algorithm name from the context.
func AlgorithmFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(algorithmKey).(string)
	return name, ok && name != ""
}

// WithRequestID attaches a correlation identifier to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts a correlation identifier from the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}
