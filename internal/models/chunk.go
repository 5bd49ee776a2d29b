// Package models defines data structures shared by the ingestion and retrieval paths.
package models

// Metadata keys used for index filters.
const (
	KeySourceURL = "source_url"
	KeyTitle     = "title"
	KeyClientID  = "client_id"
	KeyJobID     = "job_id"
)

// MetadataKeys lists every key a filter may reference.
var MetadataKeys = []string{KeySourceURL, KeyTitle, KeyClientID, KeyJobID}

// Page is one unit of acquired content, produced by the crawler or file extractor.
type Page struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Links   []string `json:"links,omitempty"`
}

// Metadata is the provenance attached to every chunk and indexed document.
type Metadata struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	ClientID  string `json:"client_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}

// Get returns the value stored under a metadata key.
func (m Metadata) Get(key string) string {
	switch key {
	case KeySourceURL:
		return m.SourceURL
	case KeyTitle:
		return m.Title
	case KeyClientID:
		return m.ClientID
	case KeyJobID:
		return m.JobID
	}
	return ""
}

// Fields returns the non-empty metadata values keyed by name.
func (m Metadata) Fields() map[string]string {
	fields := make(map[string]string, len(MetadataKeys))
	for _, k := range MetadataKeys {
		if v := m.Get(k); v != "" {
			fields[k] = v
		}
	}
	return fields
}

// Merge returns m with every non-empty field of extra applied on top.
func (m Metadata) Merge(extra Metadata) Metadata {
	if extra.SourceURL != "" {
		m.SourceURL = extra.SourceURL
	}
	if extra.Title != "" {
		m.Title = extra.Title
	}
	if extra.ClientID != "" {
		m.ClientID = extra.ClientID
	}
	if extra.JobID != "" {
		m.JobID = extra.JobID
	}
	return m
}

// Chunk is a bounded slice of a page's text. TokenCount never exceeds the
// segmenter's chunk size.
type Chunk struct {
	Text       string   `json:"text"`
	TokenCount int      `json:"token_count"`
	Metadata   Metadata `json:"metadata"`
}

// Document is a chunk as stored in the vector index.
type Document struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

// QueryResult is one search hit. Lower distance means more similar.
type QueryResult struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Distance float64  `json:"distance"`
}

// Source identifies a page that contributed context to an answer.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}
