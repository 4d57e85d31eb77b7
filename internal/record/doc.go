// Package record defines the values that cross the persistence boundary.
//
//   - AttemptRecord: an immutable snapshot of a play session, built at a
//     checkpoint or at finalize. Input to reconciliation, never stored verbatim.
//   - CanonicalRecord: the single authoritative record per (player, module).
//   - Row: the store's strictly-typed row schema. Rows are classified at the
//     store boundary; invalid rows surface as errs.CodeInvalidRow, never coerced.
//
// Progress snapshots are opaque JSON objects. They are stored in canonical
// form (sorted keys, NFC strings, no insignificant whitespace) so identical
// progress always produces identical bytes, which keeps duplicate submissions
// detectable by fingerprint.
package record
