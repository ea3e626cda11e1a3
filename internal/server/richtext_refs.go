package server

import (
	"html"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var imgSrcPattern = regexp.MustCompile(`(?is)<img\b[^>]*?\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)

// ExtractManagedImageRefs returns the public paths of managed images
// referenced by <img src> tags in content. Relative paths starting with
// prefix count; absolute URLs count only when their origin is one of
// origins. Results keep first-seen order without duplicates.
func ExtractManagedImageRefs(content, prefix string, origins []string) []string {
	if content == "" || prefix == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var refs []string
	for _, match := range imgSrcPattern.FindAllStringSubmatch(content, -1) {
		raw := match[1] + match[2] + match[3]
		ref, ok := managedPath(html.UnescapeString(strings.TrimSpace(raw)), prefix, origins)
		if !ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

func managedPath(src, prefix string, origins []string) (string, bool) {
	if src == "" {
		return "", false
	}
	if strings.HasPrefix(src, prefix) {
		return stripQuery(src), true
	}
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return "", false
	}
	origin, ok := NormalizeOrigin(src)
	if !ok || !slices.Contains(origins, origin) {
		return "", false
	}
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	return u.Path, true
}

// NormalizeOrigin reduces an http(s) URL to its lowercased scheme://host[:port].
// Default ports are dropped.
func NormalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	return scheme + "://" + host, true
}

func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
