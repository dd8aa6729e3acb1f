package crawler

import (
	"net/url"
	"strings"
)

// DiscoverLinks resolves hrefs against base and keeps the normalized http(s)
// URLs whose host equals base's host. Duplicates collapse; the first
// occurrence fixes the order.
func DiscoverLinks(base *url.URL, hrefs []string) []*url.URL {
	if base == nil {
		return nil
	}
	out := make([]*url.URL, 0, len(hrefs))
	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		normalized, err := NormalizeURL(resolved.String())
		if err != nil {
			continue
		}
		if normalized.Host != base.Host {
			continue
		}
		key := normalized.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
