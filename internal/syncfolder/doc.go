// Package syncfolder mirrors the study and contrast collections through a
// shared folder.
//
// The whole collection is exported as one JSON bundle (BundleFileName).
// Push writes the bundle from the in-memory stores; Pull validates a bundle
// against the embedded CUE schema, merges it into the local database by
// last-writer-wins on UpdatedAt, and reloads the stores. The bundle also
// carries the active study id, applied when the bundle is newer than the
// device's Marker.
//
// A folder is reached through a Backend: FSBackend for a local or
// cloud-synced directory (iCloud Drive, Dropbox) and S3Backend for an
// S3-compatible bucket. Watcher reloads when another device replaces the
// bundle in an FS folder.
package syncfolder
