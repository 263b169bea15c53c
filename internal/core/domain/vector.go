package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TagSeparator joins tags in vector metadata.
const TagSeparator = ","

// IndexedMetadataFields are the vector metadata fields that support filtering.
var IndexedMetadataFields = []string{"contentType", "group", "tags", "release", "status", "date"}

// VectorMetadata is the metadata stored alongside an embedding.
// Path holds the document store key so results can be joined back.
type VectorMetadata struct {
	ContentType string `json:"contentType"`
	Group       string `json:"group"`
	Tags        string `json:"tags"`
	Release     string `json:"release"`
	Status      string `json:"status"`
	Date        int64  `json:"date"`

	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// TagList splits the joined tags.
func (m VectorMetadata) TagList() []string {
	if m.Tags == "" {
		return nil
	}
	return strings.Split(m.Tags, TagSeparator)
}

// Validate checks the fields every consumer relies on.
func (m VectorMetadata) Validate() error {
	if _, ok := ParseContentType(m.ContentType); !ok {
		return &ValidationError{Field: "contentType", Reason: fmt.Sprintf("unknown content type %q", m.ContentType)}
	}
	if !IsContentKey(m.Path) {
		return &ValidationError{Field: "path", Reason: fmt.Sprintf("%q is not a content key", m.Path)}
	}
	if m.Date < 0 {
		return &ValidationError{Field: "date", Reason: "negative timestamp"}
	}
	return nil
}

// VectorRecord is one entry in the vector index.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata VectorMetadata
}

// NewVectorRecord projects a document and its embedding into a vector record.
// The content snippet is shortened further if serialised metadata would
// exceed MaxVectorMetadataBytes.
func NewVectorRecord(doc *Document, key string, values []float32) (*VectorRecord, error) {
	md := VectorMetadata{
		ContentType: string(doc.ContentType),
		Group:       doc.Metadata.String("group"),
		Tags:        strings.Join(doc.Metadata.Strings("tags"), TagSeparator),
		Release:     doc.Metadata.String("release"),
		Status:      doc.Metadata.String("status"),
		Path:        key,
		Title:       doc.Title(),
		Description: doc.Description(),
		Content:     TruncateSnippet(doc.Content, MaxSnippetChars),
	}
	if t, ok := doc.Metadata.Time("date"); ok {
		md.Date = t.UnixMilli()
	}

	if err := fitMetadata(&md); err != nil {
		return nil, err
	}
	return &VectorRecord{ID: doc.ID, Values: values, Metadata: md}, nil
}

func fitMetadata(md *VectorMetadata) error {
	limit := MaxSnippetChars
	for {
		raw, err := json.Marshal(md)
		if err != nil {
			return fmt.Errorf("marshal vector metadata: %w", err)
		}
		if len(raw) <= MaxVectorMetadataBytes {
			return nil
		}
		if md.Content == "" {
			return &ValidationError{Field: "metadata", Reason: fmt.Sprintf("%d bytes exceeds %d byte limit", len(raw), MaxVectorMetadataBytes)}
		}
		limit /= 2
		md.Content = TruncateSnippet(md.Content, limit)
	}
}

// VectorFilter restricts a similarity query. Zero fields are not applied.
type VectorFilter struct {
	ContentType string
	Group       string
	Release     string
	Status      string
	// Tags matches records carrying any of the listed tags.
	Tags []string
}

// IsEmpty reports whether no restriction is set.
func (f VectorFilter) IsEmpty() bool {
	return f.ContentType == "" && f.Group == "" && f.Release == "" && f.Status == "" && len(f.Tags) == 0
}

// Matches reports whether md satisfies the filter.
func (f VectorFilter) Matches(md VectorMetadata) bool {
	if f.ContentType != "" && md.ContentType != f.ContentType {
		return false
	}
	if f.Group != "" && md.Group != f.Group {
		return false
	}
	if f.Release != "" && md.Release != f.Release {
		return false
	}
	if f.Status != "" && md.Status != f.Status {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}
	for _, have := range md.TagList() {
		for _, want := range f.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// VectorMatch is a similarity query hit.
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}
