package external

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dmpsync/internal/model"
)

// Candidate is an organization returned by a name search.
type Candidate struct {
	Name           string   `yaml:"name" json:"name"`
	AlternateNames []string `yaml:"alternate_names,omitempty" json:"alternate_names,omitempty"`
	Types          []string `yaml:"types,omitempty" json:"types,omitempty"`
	IdentifierType string   `yaml:"identifier_type,omitempty" json:"identifier_type,omitempty"`
	Identifier     string   `yaml:"identifier,omitempty" json:"identifier,omitempty"`
}

// NameSearch finds organizations by free text.
type NameSearch interface {
	Search(ctx context.Context, term string) ([]Candidate, error)
}

// Directory is a NameSearch over a local list of organizations, typically
// an export of a registry such as ROR.
type Directory struct {
	entries []Candidate
}

// directoryFile is the on-disk layout of a directory file.
type directoryFile struct {
	Organizations []Candidate `yaml:"organizations"`
}

// NewDirectory creates a directory over the given candidates.
func NewDirectory(entries []Candidate) *Directory {
	return &Directory{entries: entries}
}

// LoadDirectory reads a yaml directory file.
//
// Example:
//
//	organizations:
//	  - name: University of California, Berkeley
//	    alternate_names: [UC Berkeley]
//	    types: [education]
//	    identifier_type: ror
//	    identifier: https://ror.org/01an7q238
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var file directoryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse directory %s: %w", path, err)
	}

	for i, c := range file.Organizations {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("parse directory %s: organizations[%d]: name is required", path, i)
		}
		if (c.Identifier == "") != (c.IdentifierType == "") {
			return nil, fmt.Errorf("parse directory %s: organizations[%d]: identifier and identifier_type go together", path, i)
		}
	}
	return NewDirectory(file.Organizations), nil
}

// Search returns organizations whose name or alternate names contain term,
// compared case-insensitively. Exact name matches come first; ties keep
// directory order.
func (d *Directory) Search(ctx context.Context, term string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := model.NaturalKey(term)
	if key == "" {
		return nil, nil
	}

	type hit struct {
		c     Candidate
		exact bool
	}
	var hits []hit
	for _, c := range d.entries {
		exact, partial := false, false
		for _, name := range append([]string{c.Name}, c.AlternateNames...) {
			k := model.NaturalKey(name)
			if k == key {
				exact = true
			}
			if strings.Contains(k, key) {
				partial = true
			}
		}
		if exact || partial {
			hits = append(hits, hit{c: c, exact: exact})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].exact && !hits[j].exact })
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out, nil
}

// Len returns the number of organizations in the directory.
func (d *Directory) Len() int { return len(d.entries) }
