package reconcile

import (
	"errors"
	"strings"
)

// ErrInvalidDocument matches any *InvalidDocumentError via errors.Is.
var ErrInvalidDocument = errors.New("invalid document")

// InvalidDocumentError is returned when a document lacks the top-level
// fields reconciliation needs. No entity is touched in that case.
type InvalidDocumentError struct {
	Reasons []string
}

func (e *InvalidDocumentError) Error() string {
	return "invalid document: " + strings.Join(e.Reasons, "; ")
}

// Is reports whether target is ErrInvalidDocument.
func (e *InvalidDocumentError) Is(target error) bool {
	return target == ErrInvalidDocument
}
