package crawler

import "strings"

// ShouldCrawl reports whether a link may be followed: it must not contain any
// of the exclusion patterns (case-insensitive).
func ShouldCrawl(link string, exclude []string) bool {
	lower := strings.ToLower(link)
	for _, pattern := range exclude {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}
	return true
}
