package resolver

import (
	"net/url"
	"strings"
)

// IsMarketplaceURL reports whether the host of rawURL contains marker
func IsMarketplaceURL(rawURL, marker string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), marker)
}

// AppendAffiliateTag appends tag=<tag> to rawURL, keeping the rest of the url
// byte for byte. A url already carrying exactly that tag is returned as is.
func AppendAffiliateTag(rawURL, tag string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	for _, v := range u.Query()["tag"] {
		if v == tag {
			return rawURL
		}
	}

	// Фрагмент должен остаться в конце
	base, fragment, hasFragment := strings.Cut(rawURL, "#")

	separator := "?"
	if u.RawQuery != "" {
		separator = "&"
	}
	if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
		separator = ""
	}

	result := base + separator + "tag=" + url.QueryEscape(tag)
	if hasFragment {
		result += "#" + fragment
	}
	return result
}
