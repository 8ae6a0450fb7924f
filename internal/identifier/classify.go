package identifier

import (
	"regexp"
	"strings"

	"github.com/roach88/dmpsync/internal/model"
)

var (
	doiURL      = regexp.MustCompile(`(?i)^https?://(dx\.)?doi\.org/10\.\d{4,9}/\S+$`)
	doiBare     = regexp.MustCompile(`(?i)^(doi:\s*)?10\.\d{4,9}/\S+$`)
	orcidURL    = regexp.MustCompile(`(?i)^https?://(www\.|sandbox\.)?orcid\.org/\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	orcidBare   = regexp.MustCompile(`(?i)^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	rorURL      = regexp.MustCompile(`(?i)^https?://(www\.)?ror\.org/\w+$`)
	fundrefURL  = regexp.MustCompile(`(?i)^https?://(dx\.)?doi\.org/10\.13039/\d+$`)
	arkValue    = regexp.MustCompile(`(?i)^(https?://\S+/)?ark:/?\d{5,}/\S+$`)
	genericHTTP = regexp.MustCompile(`(?i)^https?://\S+$`)
)

// Classify returns the category of an identifier given its declared type
// and its value. A recognized type name wins; otherwise the value's shape
// decides.
func Classify(typ, value string) model.Category {
	if c, ok := model.ParseCategory(typ); ok {
		return c
	}
	return ClassifyValue(value)
}

// ClassifyValue derives a category from the shape of a value alone.
func ClassifyValue(value string) model.Category {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return model.CategoryOther
	case fundrefURL.MatchString(v):
		return model.CategoryFundref
	case doiURL.MatchString(v), doiBare.MatchString(v):
		return model.CategoryDOI
	case orcidURL.MatchString(v), orcidBare.MatchString(v):
		return model.CategoryORCID
	case rorURL.MatchString(v):
		return model.CategoryROR
	case arkValue.MatchString(v):
		return model.CategoryArk
	case genericHTTP.MatchString(v):
		return model.CategoryURL
	default:
		return model.CategoryOther
	}
}
