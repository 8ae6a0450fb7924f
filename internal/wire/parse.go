package wire

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// Problem is one structural defect found in a payload.
type Problem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return fmt.Sprintf("%s: %s", p.Path, p.Message)
}

// SchemaError reports a payload that is not a structurally valid DMP
// document (malformed JSON or fields of the wrong shape).
type SchemaError struct {
	Problems []Problem
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return "invalid payload: " + strings.Join(msgs, "; ")
}

// Schema checks payloads against the embedded CUE document schema.
// A cue.Context is not safe for concurrent use, so checks are serialized.
type Schema struct {
	mu       sync.Mutex
	ctx      *cue.Context
	document cue.Value
}

// NewSchema compiles the embedded schema.
func NewSchema() (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	doc := v.LookupPath(cue.ParsePath("#Document"))
	if !doc.Exists() {
		return nil, fmt.Errorf("compile document schema: #Document not defined")
	}
	return &Schema{ctx: ctx, document: doc}, nil
}

var (
	defaultSchema     *Schema
	defaultSchemaErr  error
	defaultSchemaOnce sync.Once
)

// DefaultSchema returns a process-wide compiled schema.
func DefaultSchema() (*Schema, error) {
	defaultSchemaOnce.Do(func() {
		defaultSchema, defaultSchemaErr = NewSchema()
	})
	return defaultSchema, defaultSchemaErr
}

// Check validates the structure of a bare document (no "dmp" envelope).
func (s *Schema) Check(doc []byte) error {
	expr, err := cuejson.Extract("document.json", doc)
	if err != nil {
		return &SchemaError{Problems: []Problem{{Message: err.Error()}}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.ctx.BuildExpr(expr)
	if err := v.Err(); err != nil {
		return &SchemaError{Problems: problemsFrom(err)}
	}
	if v.Kind() != cue.StructKind {
		return &SchemaError{Problems: []Problem{{Message: "document must be a JSON object"}}}
	}
	if err := s.document.Unify(v).Validate(); err != nil {
		return &SchemaError{Problems: problemsFrom(err)}
	}
	return nil
}

func problemsFrom(err error) []Problem {
	var out []Problem
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		p := Problem{Path: strings.Join(e.Path(), "."), Message: e.Error()}
		if seen[p.String()] {
			continue
		}
		seen[p.String()] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		out = append(out, Problem{Message: err.Error()})
	}
	return out
}

// Unwrap returns the bare document, removing a {"dmp": {...}} envelope if
// present.
func Unwrap(payload []byte) ([]byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &SchemaError{Problems: []Problem{{Message: fmt.Sprintf("malformed JSON: %v", err)}}}
	}
	if inner, ok := envelope["dmp"]; ok && len(envelope) == 1 {
		inner = bytes.TrimSpace(inner)
		if len(inner) == 0 || inner[0] != '{' {
			return nil, &SchemaError{Problems: []Problem{{Path: "dmp", Message: "must be a JSON object"}}}
		}
		return inner, nil
	}
	return payload, nil
}

// Parse unwraps, structurally validates and decodes a payload.
func (s *Schema) Parse(payload []byte) (*Document, error) {
	doc, err := Unwrap(payload)
	if err != nil {
		return nil, err
	}
	if err := s.Check(doc); err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, &SchemaError{Problems: []Problem{{Message: err.Error()}}}
	}
	return &out, nil
}

// Parse decodes a payload with the default schema.
func Parse(payload []byte) (*Document, error) {
	s, err := DefaultSchema()
	if err != nil {
		return nil, err
	}
	return s.Parse(payload)
}

// Problems returns the reasons the document cannot be reconciled at all:
// it needs a title, a dmp_id with a value and a contact reachable by email
// or identifier. An empty result means the document is valid.
func (d *Document) Problems() []string {
	var out []string
	if strings.TrimSpace(d.Title) == "" {
		out = append(out, "title is required")
	}
	if d.DMPID.Empty() {
		out = append(out, "dmp_id.identifier is required")
	}
	switch {
	case d.Contact == nil:
		out = append(out, "contact is required")
	case strings.TrimSpace(d.Contact.Mbox) == "" && d.Contact.ContactID.Empty():
		out = append(out, "contact requires mbox or contact_id.identifier")
	}
	return out
}
