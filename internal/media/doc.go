// Package media schedules preview-image preloading through a four-level
// priority queue with bounded concurrency, backed by a cost-bounded LRU cache
// and a periodic memory-pressure monitor.
//
// Preloads are idempotent: a URL that is already cached, in flight, or marked
// failed resolves immediately without another fetch. The loader performs no
// retries of its own; transient-failure retry lives in the transport layer.
package media
