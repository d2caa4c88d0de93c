package domain

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a stack's display name into the slug used for API lookups
// and edge hostnames (<slug>.<base-domain>), so the output must be safe in a
// DNS label: lowercase letters, digits, and hyphens survive, uppercase is
// folded to lowercase, spaces become hyphens, and everything else is dropped.
//
// Example:
//
//	Slugify("Search Platform")  // returns "search-platform"
//	Slugify("Vector DB v2.1!")  // returns "vector-db-v21"
func Slugify(name string) string {
	slug := ""
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			slug += string(r)
		} else if r >= 'A' && r <= 'Z' {
			slug += string(r + 32) // convert to lowercase
		} else if r == ' ' {
			slug += "-"
		}
		// All other characters are dropped
	}
	return slug
}
