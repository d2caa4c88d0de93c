// Package edge provides pure types and functions for the edge reverse
// proxy. This package has no I/O dependencies and is tested with values
// in and out.
package edge

import "strings"

// HostnameParser extracts stack info from a request hostname.
// Pure function - no I/O.
type HostnameParser struct {
	BaseDomain string // e.g., "stacks.example.com"
}

// Parse extracts the stack slug from a hostname.
// "docs-a1b2c3.stacks.example.com" → "docs-a1b2c3"
// "docs-a1b2c3.stacks.example.com:8443" → "docs-a1b2c3"
// Returns empty string and false if the hostname doesn't match the base
// domain; callers then fall back to a direct hostname lookup for custom
// hostnames.
func (p HostnameParser) Parse(hostname string) (slug string, ok bool) {
	if hostname == "" {
		return "", false
	}

	host := StripPort(hostname)

	suffix := "." + p.BaseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}

	slug = strings.TrimSuffix(host, suffix)
	if slug == "" {
		return "", false
	}

	return slug, true
}

// StripPort removes a trailing :port from a hostname if present.
func StripPort(hostname string) string {
	idx := strings.LastIndex(hostname, ":")
	if idx == -1 {
		return hostname
	}

	potentialPort := hostname[idx+1:]
	if len(potentialPort) == 0 {
		return hostname
	}
	for _, c := range potentialPort {
		if c < '0' || c > '9' {
			return hostname
		}
	}
	return hostname[:idx]
}
