package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/dmpsync/internal/model"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new SQLite store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	if err := s.InTx(context.Background(), fn); err != nil {
		t.Fatalf("InTx() failed: %v", err)
	}
}

func base(id string) model.Base {
	return model.Base{ID: id, CreatedAt: testNow, UpdatedAt: testNow}
}

func testIdentifier(id string, c model.Category, value string, owner model.OwnerRef) *model.Identifier {
	return &model.Identifier{
		Base:       base(id),
		Category:   c,
		Descriptor: model.IsIdentifiedBy,
		Value:      value,
		Owner:      owner,
		Provenance: "test",
	}
}
