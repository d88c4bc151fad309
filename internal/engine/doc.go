// Package engine serializes access to a persisted object graph. An
// ExecutionContext owns one worker goroutine and a FIFO task queue; every read
// or mutation of its store runs as a task on that worker, so the store itself
// needs no locking.
package engine
