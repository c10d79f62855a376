// Package store persists the local artifact catalog and the append-only
// download history, backed by SQLite.
//
// It exposes the narrow durable-object-store surface the download orchestrator
// depends on: artifact get/put/delete, preview records written independently of
// (and before) their artifact rows, best-effort history appends, and
// change-notification subscriptions for UI consumers.
package store
