// Package download coordinates artifact downloads: it deduplicates concurrent
// requests for the same artifact, persists completed artifacts and their
// previews, records an append-only history, and publishes task snapshots to
// subscribers. Terminal tasks linger for a short grace window so UIs can show
// the final state before the entry disappears.
package download
