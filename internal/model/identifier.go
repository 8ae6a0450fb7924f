package model

import "strings"

// Category is the canonical kind of an identifier value.
type Category string

const (
	CategoryArk        Category = "ark"
	CategoryDOI        Category = "doi"
	CategoryCredit     Category = "credit"
	CategoryDUNS       Category = "duns"
	CategoryFundref    Category = "fundref"
	CategoryHandle     Category = "handle"
	CategoryISNI       Category = "isni"
	CategoryORCID      Category = "orcid"
	CategoryOpenID     Category = "openid"
	CategoryProgram    Category = "program"
	CategoryROR        Category = "ror"
	CategorySubProgram Category = "sub_program"
	CategoryURL        Category = "url"
	CategoryOther      Category = "other"
)

// globallyUnique lists the categories whose values identify exactly one
// owner across the whole store.
var globallyUnique = map[Category]bool{
	CategoryArk:     true,
	CategoryDOI:     true,
	CategoryORCID:   true,
	CategoryROR:     true,
	CategoryFundref: true,
	CategoryURL:     true,
	CategoryCredit:  true,
}

// categoryNames maps accepted spellings to categories. Keys are lower case
// with separators removed.
var categoryNames = map[string]Category{
	"ark":        CategoryArk,
	"doi":        CategoryDOI,
	"credit":     CategoryCredit,
	"duns":       CategoryDUNS,
	"fundref":    CategoryFundref,
	"handle":     CategoryHandle,
	"isni":       CategoryISNI,
	"orcid":      CategoryORCID,
	"openid":     CategoryOpenID,
	"program":    CategoryProgram,
	"ror":        CategoryROR,
	"subprogram": CategorySubProgram,
	"url":        CategoryURL,
	"uri":        CategoryURL,
	"other":      CategoryOther,
}

// GloballyUnique reports whether (category, value) is unique system-wide.
func (c Category) GloballyUnique() bool {
	return globallyUnique[c]
}

// ParseCategory maps a type name to a category. The second result is false
// when the name is not recognized.
func ParseCategory(name string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	c, ok := categoryNames[key]
	return c, ok
}

// Descriptor states how an identifier relates to its owner.
type Descriptor string

const (
	DescribedBy         Descriptor = "described_by"
	FundedBy            Descriptor = "funded_by"
	IdentifiedBy        Descriptor = "identified_by"
	IsMetadataFor       Descriptor = "is_metadata_for"
	IsIdentifiedBy      Descriptor = "is_identified_by"
	IsReferencedBy      Descriptor = "is_referenced_by"
	References          Descriptor = "references"
	Cites               Descriptor = "cites"
	IsCitedBy           Descriptor = "is_cited_by"
	Documents           Descriptor = "documents"
	IsDocumentedBy      Descriptor = "is_documented_by"
	IsSupplementTo      Descriptor = "is_supplement_to"
	IsSupplementedBy    Descriptor = "is_supplemented_by"
	IsNewVersionOf      Descriptor = "is_new_version_of"
	IsPreviousVersionOf Descriptor = "is_previous_version_of"
	HasPart             Descriptor = "has_part"
	IsPartOf            Descriptor = "is_part_of"
	IsDerivedFrom       Descriptor = "is_derived_from"
	IsSourceOf          Descriptor = "is_source_of"
	DescriptorOther     Descriptor = "other"
)

// ValidDescriptors defines the closed descriptor set.
var ValidDescriptors = map[Descriptor]bool{
	DescribedBy:         true,
	FundedBy:            true,
	IdentifiedBy:        true,
	IsMetadataFor:       true,
	IsIdentifiedBy:      true,
	IsReferencedBy:      true,
	References:          true,
	Cites:               true,
	IsCitedBy:           true,
	Documents:           true,
	IsDocumentedBy:      true,
	IsSupplementTo:      true,
	IsSupplementedBy:    true,
	IsNewVersionOf:      true,
	IsPreviousVersionOf: true,
	HasPart:             true,
	IsPartOf:            true,
	IsDerivedFrom:       true,
	IsSourceOf:          true,
	DescriptorOther:     true,
}

// ParseDescriptor accepts snake_case or CamelCase relation names
// ("IsCitedBy", "is_cited_by"). Unknown names map to DescriptorOther.
func ParseDescriptor(name string) Descriptor {
	d := Descriptor(toSnake(strings.TrimSpace(name)))
	if ValidDescriptors[d] {
		return d
	}
	return DescriptorOther
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Identifier is an external identifier attached to exactly one owner.
type Identifier struct {
	Base
	Category   Category   `json:"category"`
	Descriptor Descriptor `json:"descriptor"`
	Value      string     `json:"value"`
	Owner      OwnerRef   `json:"owner"`
	Provenance string     `json:"provenance"`
	WorkType   string     `json:"work_type,omitempty"`
}

// Same reports whether two identifiers share category and value.
func (i *Identifier) Same(other *Identifier) bool {
	return i.Category == other.Category && i.Value == other.Value
}

// AttachIdentifier appends id to list unless an identifier with the same
// category and value is already present. It returns the resulting list and
// whether id was added.
func AttachIdentifier(list []*Identifier, id *Identifier) ([]*Identifier, bool) {
	if id == nil {
		return list, false
	}
	for _, existing := range list {
		if existing.Same(id) {
			return list, false
		}
	}
	return append(list, id), true
}

// FindIdentifier returns the first identifier in list with the given
// category, or nil.
func FindIdentifier(list []*Identifier, c Category) *Identifier {
	for _, id := range list {
		if id.Category == c {
			return id
		}
	}
	return nil
}
