// Package wire defines the input DTOs for submitted DMP documents and the
// boundary where payloads are parsed and structurally validated.
//
// Parsing happens once: a payload is unwrapped from its optional
// {"dmp": ...} envelope, checked against the embedded CUE schema
// (schema.cue), and decoded into Document. Reconcilers work only with these
// typed DTOs and never inspect raw JSON.
//
// The schema is deliberately permissive about which fields are present:
// required-field rules belong to the reconciler validity gates, which may
// skip an invalid fragment without rejecting the whole document. The schema
// rejects shape errors only, such as a dataset given as a string.
package wire
