// Package export renders a stored plan's distributions as a Frictionless
// data package, so the files a plan promises can be fetched and checked by
// standard tooling.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"

	"github.com/roach88/dmpsync/internal/model"
)

// Report lists what the package leaves out.
type Report struct {
	// Skipped names distributions without an access or download URL.
	Skipped []string `json:"skipped,omitempty"`
}

type packageDescriptor struct {
	Name         string        `json:"name"`
	ID           string        `json:"id,omitempty"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description,omitempty"`
	Profile      string        `json:"profile"`
	Created      string        `json:"created"`
	Keywords     []string      `json:"keywords,omitempty"`
	Contributors []contributor `json:"contributors,omitempty"`
	Resources    []resource    `json:"resources"`
}

type contributor struct {
	Title        string `json:"title"`
	Email        string `json:"email,omitempty"`
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role"`
}

type resource struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Format      string    `json:"format,omitempty"`
	Bytes       *int64    `json:"bytes,omitempty"`
	Licenses    []license `json:"licenses,omitempty"`

	// DMP-specific properties. Frictionless allows extra keys.
	Dataset    string `json:"dataset"`
	DataAccess string `json:"data_access,omitempty"`
	Host       string `json:"host,omitempty"`
}

type license struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// Package builds the data package for plan. created stamps the package.
func Package(plan *model.Plan, created time.Time) (*datapackage.Package, Report, error) {
	var report Report
	if plan == nil {
		return nil, report, fmt.Errorf("export: plan is nil")
	}

	desc := packageDescriptor{
		Name:        slug(plan.Title, "plan"),
		Title:       plan.Title,
		Description: plan.Description,
		Profile:     "data-package",
		Created:     created.UTC().Format(time.RFC3339),
		Resources:   []resource{},
	}
	if doi := plan.DOI(); doi != nil {
		desc.ID = doi.Value
	}

	for _, r := range plan.Roles {
		if r.Contributor == nil {
			continue
		}
		c := contributor{
			Title: r.Contributor.Label(),
			Email: r.Contributor.Email,
			Role:  "contributor",
		}
		if r.Role == model.RolePrimaryContact {
			c.Role = "maintainer"
		}
		if r.Contributor.Affiliation != nil {
			c.Organization = r.Contributor.Affiliation.Name
		}
		desc.Contributors = append(desc.Contributors, c)
	}

	keywords := make(map[string]bool)
	names := make(map[string]int)
	for _, d := range plan.Datasets {
		for _, k := range d.Keywords {
			keywords[k] = true
		}
		for _, dist := range d.Distributions {
			path := dist.DownloadURL
			if path == "" {
				path = dist.AccessURL
			}
			if path == "" {
				report.Skipped = append(report.Skipped, d.Title+" / "+dist.Title)
				continue
			}
			res := resource{
				Name:        unique(names, slug(dist.Title, "distribution")),
				Path:        path,
				Title:       dist.Title,
				Description: dist.Description,
				Bytes:       dist.ByteSize,
				Dataset:     d.Title,
				DataAccess:  string(dist.DataAccess),
			}
			if len(dist.Formats) > 0 {
				res.Format = strings.ToLower(dist.Formats[0])
			}
			if dist.Host != nil {
				res.Host = dist.Host.Title
			}
			for _, l := range dist.Licenses {
				res.Licenses = append(res.Licenses, license{
					Path:  l.LicenseRef,
					Title: "from " + l.StartDate.Format(time.DateOnly),
				})
			}
			desc.Resources = append(desc.Resources, res)
		}
	}
	for k := range keywords {
		desc.Keywords = append(desc.Keywords, k)
	}
	sort.Strings(desc.Keywords)

	if len(desc.Resources) == 0 {
		return nil, report, fmt.Errorf("export %s: no distribution has a URL", plan.ID)
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(desc)
	if err != nil {
		return nil, report, fmt.Errorf("encode descriptor: %w", err)
	}
	var descriptor map[string]any
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, report, fmt.Errorf("decode descriptor: %w", err)
	}
	pkg, err := datapackage.New(descriptor, ".", validator.InMemoryLoader())
	if err != nil {
		return nil, report, fmt.Errorf("build data package: %w", err)
	}
	return pkg, report, nil
}

// Save writes the package descriptor to path.
func Save(pkg *datapackage.Package, path string) error {
	if err := pkg.SaveDescriptor(path); err != nil {
		return fmt.Errorf("save data package: %w", err)
	}
	return nil
}

// JSON returns the indented package descriptor.
func JSON(pkg *datapackage.Package) ([]byte, error) {
	return json.MarshalIndent(pkg.Descriptor(), "", "  ")
}

var nonName = regexp.MustCompile(`[^a-z0-9._-]+`)

// slug lowercases s and replaces everything Frictionless forbids in names.
func slug(s, fallback string) string {
	out := strings.Trim(nonName.ReplaceAllString(strings.ToLower(model.Clean(s)), "-"), "-._")
	if out == "" {
		return fallback
	}
	return out
}

func unique(seen map[string]int, name string) string {
	seen[name]++
	if n := seen[name]; n > 1 {
		return fmt.Sprintf("%s-%d", name, n)
	}
	return name
}
