package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StalkR/hsts"
)

// CitationLookup fetches a formatted citation for an identifier.
type CitationLookup interface {
	Fetch(ctx context.Context, identifier string) (string, error)
}

// DefaultCitationBase is the DOI resolver used for content negotiation.
const DefaultCitationBase = "https://doi.org"

// ErrNoCitation is returned when the resolver has no citation for an
// identifier.
var ErrNoCitation = errors.New("no citation available")

// DowngradedRedirectError is returned when the resolver redirects from
// https to http.
type DowngradedRedirectError struct {
	Endpoint string
}

func (e *DowngradedRedirectError) Error() string {
	return fmt.Sprintf("refusing redirect to insecure endpoint %s", e.Endpoint)
}

// DOICitations resolves DOIs to citations with DOI content negotiation
// (Accept: text/x-bibliography).
type DOICitations struct {
	client  *http.Client
	baseURL string
	style   string
}

// NewDOICitations creates a citation client. An empty baseURL uses
// DefaultCitationBase; a zero timeout defaults to ten seconds.
func NewDOICitations(baseURL string, timeout time.Duration) *DOICitations {
	if baseURL == "" {
		baseURL = DefaultCitationBase
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &DOICitations{
		client:  secureClient(timeout),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		style:   "apa",
	}
}

// secureClient sets a timeout, refuses https-to-http redirects and enables
// HTTP Strict Transport Security.
func secureClient(timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 0 && via[0].URL.Scheme == "https" && req.URL.Scheme == "http" {
				return &DowngradedRedirectError{
					Endpoint: fmt.Sprintf("%s%s", req.URL.Host, req.URL.Path),
				}
			}
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return nil
		},
	}
	client.Transport = hsts.New(client.Transport) // enable HSTS
	return client
}

// Fetch returns the citation text for a DOI, given bare ("10.1/abc") or as
// a doi.org URL.
func (c *DOICitations) Fetch(ctx context.Context, identifier string) (string, error) {
	doi := bareDOI(identifier)
	if doi == "" {
		return "", fmt.Errorf("fetch citation: %q is not a DOI", identifier)
	}

	endpoint := c.baseURL + "/" + escapeDOI(doi)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("fetch citation: %w", err)
	}
	req.Header.Set("Accept", "text/x-bibliography; style="+c.style)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch citation %s: %w", doi, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return "", fmt.Errorf("fetch citation %s: %w", doi, ErrNoCitation)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("fetch citation %s: unexpected status %d", doi, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read citation %s: %w", doi, err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("fetch citation %s: %w", doi, ErrNoCitation)
	}
	return text, nil
}

// bareDOI strips resolver prefixes. It returns "" when s is not a DOI.
func bareDOI(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	if !strings.HasPrefix(s, "10.") || !strings.Contains(s, "/") {
		return ""
	}
	return s
}

// escapeDOI escapes each path segment of a DOI suffix.
func escapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
