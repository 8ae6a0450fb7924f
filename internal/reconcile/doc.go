// Package reconcile maps one parsed DMP document onto the stored entity
// graph.
//
// A Session is created per document. Session.Plan walks the document in a
// fixed order (plan, contact, projects, contributors, costs, datasets,
// related identifiers) and, for every fragment, decides whether it refers
// to a known entity or needs a new one:
//
//  1. Validity gate: a fragment missing its required fields is skipped.
//  2. Identifier match through the identifier.Resolver.
//  3. Natural-key match (name, title, email) scoped to the parent.
//  4. Otherwise a new, unpersisted entity is initialized.
//
// Nothing is written. The returned Graph holds the reconciled plan plus
// the role links and identifiers that must be deleted; the guard package
// validates and persists it in one transaction.
//
// IDENTITY:
//
// The session keeps an identity map for shared entities (affiliations,
// contributors, hosts, metadata) so one stored row maps to one pointer per
// call, whether it was reached through the plan, a contributor or a
// funding.
//
// MERGE RULES:
//
// Entities owned by the plan (projects, fundings, costs, datasets and
// their children) take every scalar from the document. Shared entities
// only take values the document actually supplies, and their natural-key
// fields are never renamed once set.
package reconcile
