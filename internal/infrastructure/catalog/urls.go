package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Dialect A paging parameters
const (
	ParamFormat   = "format"
	ParamOffset   = "No"
	ParamPageSize = "Nrpp"
)

// Dialect B paging parameters
const (
	ParamPage           = "page"
	ParamResultsPerPage = "num_results_per_page"
)

// BuildDialectAURL repairs a discovered dialect A URL and injects offset/size paging.
func BuildDialectAURL(base string, offset, size int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse dialect A url: %w", err)
	}

	u = RepairDialectAURL(u)

	q := u.Query()
	q.Set(ParamFormat, "json")
	q.Set(ParamOffset, strconv.Itoa(offset))
	q.Set(ParamPageSize, strconv.Itoa(size))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// RepairDialectAURL decodes a query string smuggled into the path as "%3F" and
// collapses an accidentally doubled path prefix. The input is not modified.
func RepairDialectAURL(in *url.URL) *url.URL {
	u := *in

	if idx := strings.Index(u.Path, "?"); idx >= 0 {
		smuggled := u.Path[idx+1:]
		u.Path = u.Path[:idx]
		u.RawPath = ""
		switch {
		case u.RawQuery == "":
			u.RawQuery = smuggled
		case smuggled != "":
			u.RawQuery = smuggled + "&" + u.RawQuery
		}
	}

	if collapsed, ok := collapseDoubledPrefix(u.Path); ok {
		u.Path = collapsed
		u.RawPath = ""
	}

	return &u
}

// collapseDoubledPrefix turns "/a/b/a/b/_/N-1" into "/a/b/_/N-1", using the longest
// repeated leading run of segments.
func collapseDoubledPrefix(path string) (string, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for k := len(segments) / 2; k >= 1; k-- {
		if equalSegments(segments[:k], segments[k:2*k]) && segments[0] != "" && segments[0] != "_" {
			rest := segments[k:]
			collapsed := "/" + strings.Join(rest, "/")
			if strings.HasSuffix(path, "/") && !strings.HasSuffix(collapsed, "/") {
				collapsed += "/"
			}
			return collapsed, true
		}
	}
	return path, false
}

func equalSegments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BuildDialectBURL sets 1-based page and page size on a discovered dialect B URL
func BuildDialectBURL(template string, page, size int) (string, error) {
	u, err := url.Parse(template)
	if err != nil {
		return "", fmt.Errorf("parse dialect B url: %w", err)
	}

	q := u.Query()
	q.Set(ParamPage, strconv.Itoa(page))
	q.Set(ParamResultsPerPage, strconv.Itoa(size))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// TemplatePageSize returns the page size a discovered dialect B URL already carries, or 0
func TemplatePageSize(template string) int {
	u, err := url.Parse(template)
	if err != nil {
		return 0
	}
	size, err := strconv.Atoi(u.Query().Get(ParamResultsPerPage))
	if err != nil || size <= 0 {
		return 0
	}
	return size
}

// Origin returns scheme://host of a URL, or "" when it has none
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Absolute resolves ref against origin; absolute refs are returned unchanged
func Absolute(origin, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	base, err := url.Parse(origin)
	if err != nil || origin == "" {
		return ref
	}
	return base.ResolveReference(r).String()
}
