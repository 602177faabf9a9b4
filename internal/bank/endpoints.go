package bank

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageSizeLimit forces the listing endpoint to return a whole theme on one page.
const PageSizeLimit = 1 << 14

// DefaultHostTemplate is formatted with the gia type to get the bank root.
const DefaultHostTemplate = "https://%s.fipi.ru/bank"

// Endpoints holds the three logical bank URLs for one gia type.
type Endpoints struct {
	GiaType   GiaType
	Base      string
	Index     string
	Questions string
}

// NewEndpoints derives the endpoints from a host template such as DefaultHostTemplate.
func NewEndpoints(hostTemplate string, gia GiaType) Endpoints {
	if hostTemplate == "" {
		hostTemplate = DefaultHostTemplate
	}
	base := strings.TrimRight(hostTemplate, "/")
	if strings.Contains(base, "%s") {
		base = fmt.Sprintf(base, gia)
	}
	return Endpoints{
		GiaType:   gia,
		Base:      base,
		Index:     base + "/index.php",
		Questions: base + "/questions.php",
	}
}

// LandingRequest fetches the subject list.
func (e Endpoints) LandingRequest() FetchRequest {
	return FetchRequest{URL: e.Base}
}

// ThemeIndexRequest fetches the theme dropdown for a subject.
func (e Endpoints) ThemeIndexRequest(subjectHash string) FetchRequest {
	return FetchRequest{URL: e.Index, Query: url.Values{"proj": {subjectHash}}}
}

// ListingRequest fetches every problem of a subject filtered by codifier ids.
func (e Endpoints) ListingRequest(subjectHash string, codifierIDs []string) FetchRequest {
	return FetchRequest{
		URL: e.Questions,
		Query: url.Values{
			"search":   {"1"},
			"pagesize": {strconv.Itoa(PageSizeLimit)},
			"proj":     {subjectHash},
			"theme":    {strings.Join(codifierIDs, ",")},
		},
	}
}

// ProblemURL is the canonical link to a single problem.
func (e Endpoints) ProblemURL(subjectHash, problemID string) string {
	return fmt.Sprintf("%s?search=1&proj=%s&qid=%s", e.Questions, subjectHash, problemID)
}

// ResolveFile turns a script-relative file path into an absolute URL.
func (e Endpoints) ResolveFile(path string) (string, error) {
	base, err := url.Parse(e.Base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse file path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}
