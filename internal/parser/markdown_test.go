package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMarkdown(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantTitle   string
		wantContent string
	}{
		{
			name:        "frontmatter title",
			input:       "---\ntitle: Pricing\ntags: [a, b]\n---\n# Plans\nBody text.\n",
			wantTitle:   "Pricing",
			wantContent: "# Plans\nBody text.\n",
		},
		{
			name:        "frontmatter name",
			input:       "---\nname: Handbook\n---\nBody",
			wantTitle:   "Handbook",
			wantContent: "Body",
		},
		{
			name:        "first h1",
			input:       "intro\n\n# Getting Started\n\n## Install\n",
			wantTitle:   "Getting Started",
			wantContent: "intro\n\n# Getting Started\n\n## Install\n",
		},
		{
			name:        "malformed frontmatter is dropped",
			input:       "---\ntitle: [unclosed\n---\n# Fallback\n",
			wantTitle:   "Fallback",
			wantContent: "# Fallback\n",
		},
		{
			name:        "unterminated frontmatter is body",
			input:       "---\ntitle: x\nno closing fence",
			wantTitle:   "",
			wantContent: "---\ntitle: x\nno closing fence",
		},
		{
			name:        "crlf",
			input:       "---\r\ntitle: Win\r\n---\r\ntext\r\n",
			wantTitle:   "Win",
			wantContent: "text\n",
		},
		{
			name:        "plain",
			input:       "just text",
			wantTitle:   "",
			wantContent: "just text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseMarkdown(tt.input)
			assert.Equal(t, tt.wantTitle, doc.Title)
			assert.Equal(t, tt.wantContent, doc.Content)
			assert.NotNil(t, doc.Frontmatter)
		})
	}
}
