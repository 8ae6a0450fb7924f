// Package archive keeps a copy of every accepted submission payload
// outside the relational store.
//
// Payloads are content addressed: the key is derived from the provenance
// and the payload hash, so archiving the same document twice is a no-op.
// Three drivers are available: a local directory, an S3-compatible bucket
// and an in-memory map for tests.
package archive
