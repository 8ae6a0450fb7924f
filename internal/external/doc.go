// Package external holds the collaborators reconciliation calls out to:
// organization name search, DOI minting and citation lookup.
//
// Each collaborator is an interface with one local implementation. The
// reconciliation core treats them as black boxes that either return a
// result or nothing; none of them is required for a document to reconcile.
package external
