// Package state provides the in-memory entity stores for studies and contrasts.
//
// Each store owns a cached collection that mirrors the persistence layer:
//
//	caller → store action → repository write → cache commit
//
// The cache is only updated after the repository call succeeds, so a failed
// write leaves the cache in its pre-call state. Loads replace the whole
// cache; there is no partial refresh. Queries are linear scans over the
// cache in insertion order.
//
// # Active Study
//
// At most one study is active. Every entry point that can change IsActive
// (SetActiveStudy, UpdateStudy) recomputes the flag across the collection
// and persists every affected study. When the repository implements
// StudyBatchSaver the writes share one transaction; otherwise they run in
// parallel and the cache is left untouched if any write fails.
//
// # Persisted Subset
//
// Only the active study id survives a restart through a SnapshotStore (the
// study list itself is reloaded from the repository). The contrast store
// persists nothing beyond its records. PersistStudyState and
// PersistContrastState are the pure functions selecting those subsets.
package state
