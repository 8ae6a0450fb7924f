package ingest

import (
	"errors"
	"fmt"
	"slices"
)

// ErrorCode categorizes submission failures.
type ErrorCode string

const (
	// ErrCodeInvalidPayload indicates malformed JSON or a document of the
	// wrong shape.
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// ErrCodeInvalidDocument indicates a document without title, dmp_id or
	// a reachable contact.
	ErrCodeInvalidDocument ErrorCode = "INVALID_DOCUMENT"

	// ErrCodeInvalidGraph indicates the reconciled graph failed validation.
	// Nothing was written.
	ErrCodeInvalidGraph ErrorCode = "INVALID_GRAPH"

	// ErrCodeStorage indicates a database failure. The transaction was
	// rolled back and the submission may be retried.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeMint indicates DOI minting failed after the plan was saved.
	ErrCodeMint ErrorCode = "MINT"

	// ErrCodeArchive indicates the payload could not be archived after the
	// plan was saved.
	ErrCodeArchive ErrorCode = "ARCHIVE"
)

// Error is a coded submission failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is finds a code in
// every branch of a joined error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Codes returns the code of every *Error in err's tree, in depth-first
// order without duplicates.
func Codes(err error) []ErrorCode {
	var codes []ErrorCode
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(*Error); ok && !slices.Contains(codes, e.Code) {
			codes = append(codes, e.Code)
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return codes
}

func hasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}

// IsInvalidPayload reports whether err is an INVALID_PAYLOAD failure.
func IsInvalidPayload(err error) bool { return hasCode(err, ErrCodeInvalidPayload) }

// IsInvalidDocument reports whether err is an INVALID_DOCUMENT failure.
func IsInvalidDocument(err error) bool { return hasCode(err, ErrCodeInvalidDocument) }

// IsInvalidGraph reports whether err is an INVALID_GRAPH failure.
func IsInvalidGraph(err error) bool { return hasCode(err, ErrCodeInvalidGraph) }

// IsStorageError reports whether err is a STORAGE failure.
func IsStorageError(err error) bool { return hasCode(err, ErrCodeStorage) }

// IsMintError reports whether err is a MINT failure.
func IsMintError(err error) bool { return hasCode(err, ErrCodeMint) }

// IsArchiveError reports whether err is an ARCHIVE failure.
func IsArchiveError(err error) bool { return hasCode(err, ErrCodeArchive) }
