// Package syncer keeps exactly one canonical progress record per
// (player, module) in a store that may hold zero, one or many rows for a key.
//
// The store is not transactional across calls. Every write path is
// load → reconcile → write, and races are resolved by re-reading and
// re-reconciling rather than by locking:
//
//   - A write whose target row vanished is retried from a fresh load.
//   - Finalize always ends with a cleanup pass that collapses duplicate rows
//     and deletes rows that fail classification.
//   - Checkpoints never regress a better score and never touch history.
//
// All store calls go through one bounded retry wrapper (retry.go) with a
// per-call timeout. When retries are exhausted the caller gets an
// errs.CodeTransientStore error and the live session is unaffected.
package syncer
