package identity

import (
	"net/url"
	"regexp"
	"strings"
)

var itemIDRegex = regexp.MustCompile(`/item/(\d+)`)

// ItemID extracts the numeric listing id from an item URL. When no id can be
// found the full URL stands in as the identity.
func ItemID(itemURL string) string {
	if m := itemIDRegex.FindStringSubmatch(itemURL); m != nil {
		return m[1]
	}
	return itemURL
}

// CanonicalURL resolves href against base and drops the query string and
// fragment, which carry tracking state rather than identity.
func CanonicalURL(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	var abs string
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		abs = href
	case strings.HasPrefix(href, "/"):
		abs = strings.TrimRight(base, "/") + href
	default:
		abs = strings.TrimRight(base, "/") + "/" + href
	}

	u, err := url.Parse(abs)
	if err != nil {
		return abs
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// IsItemPath reports whether href points at an item detail page.
func IsItemPath(href, marker string) bool {
	return href != "" && strings.Contains(href, marker)
}
