package domain

import (
	"strings"
	"time"
)

// Metadata holds parsed frontmatter fields.
// Values keep the types produced by the YAML decoder (string, bool, int,
// float64, []any, map[string]any, time.Time).
type Metadata map[string]any

// String returns the value of key if it is a string, otherwise "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the value of key and whether it is a real boolean.
func (m Metadata) Bool(key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// Strings returns key as a list of strings.
// A scalar string is treated as a single element list; non-string
// elements are dropped.
func (m Metadata) Strings(key string) []string {
	switch v := m[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time returns key as a time.
// Strings are accepted in RFC 3339 and plain date forms.
func (m Metadata) Time(key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case time.Time:
		return v, true
	case string:
		return parseDate(v)
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Document is a published knowledge entry as held in the document store.
// Its store location is derived from ContentType and ID (see StoreKey).
type Document struct {
	// ID is the filename-derived identifier (at most MaxIDBytes).
	ID string `json:"id"`

	// ContentType is the entry kind.
	ContentType ContentType `json:"contentType"`

	// Path is the repository path the entry was read from.
	Path string `json:"path"`

	// Metadata is the parsed frontmatter.
	Metadata Metadata `json:"metadata"`

	// Content is the markdown body with frontmatter removed.
	Content string `json:"content"`

	// SyncedAt is when the entry was last written.
	SyncedAt time.Time `json:"syncedAt"`

	// CommitSHA identifies the source revision.
	CommitSHA string `json:"commitSha"`
}

// Key returns the document's store key.
func (d *Document) Key() (string, error) {
	return StoreKey(d.ContentType, d.ID)
}

// Title returns the frontmatter title.
func (d *Document) Title() string {
	return d.Metadata.String("title")
}

// Description returns the frontmatter description.
func (d *Document) Description() string {
	return d.Metadata.String("description")
}

// EmbeddingText is the text submitted to the embedding oracle:
// title, description and body separated by blank lines, empty parts skipped.
func (d *Document) EmbeddingText() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Title(), d.Description(), d.Content} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ParsedMarkdown is the result of splitting a markdown file into frontmatter
// and body. A non-nil Err means the frontmatter could not be parsed; callers
// must not treat that as "unpublished".
type ParsedMarkdown struct {
	Metadata Metadata
	Body     string
	Err      error
}

// DocumentRef identifies a stored document without loading it.
type DocumentRef struct {
	ContentType ContentType `json:"contentType"`
	ID          string      `json:"id"`
	Key         string      `json:"key"`
}

// ListParams filters a document listing.
type ListParams struct {
	ContentType ContentType
	Group       string
	Release     string
	Limit       int
	Offset      int
}

// DocumentPage is one page of a document listing.
type DocumentPage struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
