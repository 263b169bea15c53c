package domain

import "strings"

// ContentType identifies the kind of a knowledge entry.
// The set is closed; unknown values are rejected by ParseContentType.
type ContentType string

// Supported content types.
const (
	ContentTypeFile      ContentType = "file"
	ContentTypeReference ContentType = "reference"
	ContentTypeIndex     ContentType = "index"
	ContentTypeLink      ContentType = "link"
	ContentTypeTag       ContentType = "tag"
	ContentTypeResource  ContentType = "resource"
	ContentTypePattern   ContentType = "pattern"
	ContentTypePractice  ContentType = "practice"
	ContentTypePrimitive ContentType = "primitive"
	ContentTypeProtocol  ContentType = "protocol"
	ContentTypePlaybook  ContentType = "playbook"
	ContentTypeQuestion  ContentType = "question"
	ContentTypeStory     ContentType = "story"
	ContentTypeStudy     ContentType = "study"
	ContentTypeArticle   ContentType = "article"
	ContentTypeData      ContentType = "data"
	ContentTypePerson    ContentType = "person"
	ContentTypeGroup     ContentType = "group"
	ContentTypeProject   ContentType = "project"
	ContentTypePlace     ContentType = "place"
	ContentTypeGathering ContentType = "gathering"
)

// DefaultContentType is used when neither frontmatter nor path identify a type.
const DefaultContentType = ContentTypeFile

var contentTypes = []ContentType{
	ContentTypeFile, ContentTypeReference, ContentTypeIndex, ContentTypeLink,
	ContentTypeTag, ContentTypeResource, ContentTypePattern, ContentTypePractice,
	ContentTypePrimitive, ContentTypeProtocol, ContentTypePlaybook, ContentTypeQuestion,
	ContentTypeStory, ContentTypeStudy, ContentTypeArticle, ContentTypeData,
	ContentTypePerson, ContentTypeGroup, ContentTypeProject, ContentTypePlace,
	ContentTypeGathering,
}

// ContentTypes returns every supported content type.
func ContentTypes() []ContentType {
	out := make([]ContentType, len(contentTypes))
	copy(out, contentTypes)
	return out
}

// IsValid reports whether c is a member of the closed set.
func (c ContentType) IsValid() bool {
	for _, ct := range contentTypes {
		if ct == c {
			return true
		}
	}
	return false
}

// String returns the wire representation.
func (c ContentType) String() string {
	return string(c)
}

// ParseContentType converts s into a ContentType.
func ParseContentType(s string) (ContentType, bool) {
	ct := ContentType(s)
	if !ct.IsValid() {
		return "", false
	}
	return ct, true
}

// pathPrefixes maps repository directories to content types.
// Order matters: the first matching prefix wins.
var pathPrefixes = []struct {
	prefix      string
	contentType ContentType
}{
	{"artifacts/patterns/", ContentTypePattern},
	{"artifacts/practices/", ContentTypePractice},
	{"artifacts/primitives/", ContentTypePrimitive},
	{"artifacts/protocols/", ContentTypeProtocol},
	{"artifacts/playbooks/", ContentTypePlaybook},
	{"artifacts/questions/", ContentTypeQuestion},
	{"artifacts/studies/", ContentTypeStudy},
	{"artifacts/articles/", ContentTypeArticle},
	{"data/people/", ContentTypePerson},
	{"data/groups/", ContentTypeGroup},
	{"data/projects/", ContentTypeProject},
	{"data/places/", ContentTypePlace},
	{"data/gatherings/", ContentTypeGathering},
	{"links/", ContentTypeLink},
	{"tags/", ContentTypeTag},
	{"notes/", ContentTypeFile},
	{"drafts/", ContentTypeFile},
}

// InferContentType derives a content type from a repository path.
// Paths outside every known directory map to DefaultContentType.
func InferContentType(path string) ContentType {
	for _, p := range pathPrefixes {
		if strings.HasPrefix(path, p.prefix) {
			return p.contentType
		}
	}
	return DefaultContentType
}

// ResolveContentType prefers an explicit, valid frontmatter "type" and
// falls back to path inference.
func ResolveContentType(md Metadata, path string) ContentType {
	if ct, ok := ParseContentType(md.String("type")); ok {
		return ct
	}
	return InferContentType(path)
}

// ShouldStore reports whether frontmatter marks the entry as published.
// Both flags must be real booleans: "true" as a string does not publish.
func ShouldStore(md Metadata) bool {
	publish, ok := md.Bool("publish")
	if !ok || !publish {
		return false
	}
	draft, _ := md.Bool("draft")
	return !draft
}
