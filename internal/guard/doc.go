// Package guard validates a reconciled graph and persists it atomically.
//
// Persist first walks the whole graph and collects every violation; a
// non-empty list aborts before any write. Otherwise everything is saved in
// one transaction:
//
//  1. Shared entities still new after reconciliation (affiliations, hosts,
//     metadata standards, contributors) are looked up again by natural key
//     or identifier. A row stored in the meantime is adopted in place.
//  2. New globally unique identifiers claimed by another owner in the
//     meantime are dropped.
//  3. Rows are written parents first; stale role links and identifiers
//     are deleted before role links are saved, since a plan holds at most
//     one primary_contact row.
//  4. AfterSave hooks run inside the same transaction.
//
// Unique indexes in the store back the re-query: a conflicting concurrent
// commit makes the transaction fail and roll back as a whole.
package guard
