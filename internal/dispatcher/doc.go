// Package dispatcher runs the scheduling loop between the persistent job
// store and the task-queue adapter. Each tick it folds finished
// executions back into the store, promotes eligible queued jobs oldest
// first under the per-dataset and global concurrency limits, and applies
// the transient-failure retry policy with exponential backoff.
package dispatcher
