// Package identifier resolves external identifiers ({type, value} pairs
// from a DMP document) to identifier records.
//
// Every identifier has a category. Values in a globally unique category
// (ark, doi, orcid, ror, fundref, url, credit) name exactly one owner across
// the store, so they are matched by (category, value) alone. Values in any
// other category are unique only per (provenance, owner) and are matched
// only against the owner they are being attached to.
//
// A Resolver is bound to one reconciliation call. It remembers the
// identifiers it initializes so that two fragments of the same document
// carrying the same value resolve to one record before anything is saved.
package identifier
