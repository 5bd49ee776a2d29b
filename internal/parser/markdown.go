package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var h1Regex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// MarkdownDoc is a Markdown file split into frontmatter and body.
type MarkdownDoc struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Title from frontmatter "title" or "name", else the first h1
	Title string

	// Body after the frontmatter block
	Content string
}

// ParseMarkdown separates a leading YAML frontmatter block from the body.
// Malformed frontmatter is dropped, never fatal.
func ParseMarkdown(content string) MarkdownDoc {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	doc := MarkdownDoc{Frontmatter: map[string]any{}, Content: content}

	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---"); end >= 0 {
			if err := yaml.Unmarshal([]byte(content[4:4+end]), &doc.Frontmatter); err != nil {
				doc.Frontmatter = map[string]any{}
			}
			rest := content[4+end+4:]
			// Drop the rest of the closing fence line.
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				rest = rest[nl+1:]
			} else {
				rest = ""
			}
			doc.Content = rest
		}
	}

	doc.Title = markdownTitle(doc.Frontmatter, doc.Content)
	return doc
}

func markdownTitle(fm map[string]any, body string) string {
	for _, key := range []string{"title", "name"} {
		if s, ok := fm[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	if m := h1Regex.FindStringSubmatch(body); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
