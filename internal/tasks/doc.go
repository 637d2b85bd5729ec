// Package tasks runs long playlist operations with real-time progress reporting.
//
// # Bulk Export
//
// [Exporter.BulkExport] writes many playlists to disk in one of the [formatter] formats:
//   - Playlists are fetched one at a time behind a token bucket ([golang.org/x/time/rate])
//   - A pool of workers renders and writes each playlist with [formatter.WriteExport]
//   - Failures are recorded per playlist and never stop the run
//   - A manifest (export_manifest.json) summarizing every result is written last
//
// Without explicit IDs every playlist of the logged in user is exported.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
