package domain

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	// MaxIDBytes is the vector index limit on record identifiers.
	MaxIDBytes = 64

	// ContentPrefix is the store key prefix for all knowledge entries.
	ContentPrefix = "content/"

	// MaxSnippetChars bounds the content snippet kept in vector metadata.
	MaxSnippetChars = 8000

	// MaxVectorMetadataBytes bounds serialised vector metadata.
	MaxVectorMetadataBytes = 10 * 1024

	snippetEllipsis = "..."
	keySuffix       = ".json"
)

// GenerateID derives a document id from a repository path: the last path
// segment without its extension.
func GenerateID(filePath string) (string, error) {
	base := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	id := strings.TrimSuffix(base, path.Ext(base))
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("%w: empty id for path %q", ErrInvalidID, filePath)
	}
	if len(id) > MaxIDBytes {
		return "", fmt.Errorf("%w: %q exceeds %d byte limit (%d bytes)", ErrInvalidID, id, MaxIDBytes, len(id))
	}
	return id, nil
}

// StoreKey returns the store key for a document: content/<type>/<id>.json.
// Identifiers that could escape the content type directory are rejected.
func StoreKey(ct ContentType, id string) (string, error) {
	if !ct.IsValid() {
		return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidKey, ct)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrInvalidKey)
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("%w: invalid characters in id %q", ErrInvalidKey, id)
	}
	return ContentPrefix + string(ct) + "/" + id + keySuffix, nil
}

// ContentTypePrefix returns the listing prefix for one content type.
func ContentTypePrefix(ct ContentType) string {
	return ContentPrefix + string(ct) + "/"
}

// ParseStoreKey splits a store key into its content type and id.
func ParseStoreKey(key string) (ContentType, string, error) {
	rest, ok := strings.CutPrefix(key, ContentPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is outside %s", ErrInvalidKey, key, ContentPrefix)
	}
	typ, file, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(file, "/") {
		return "", "", fmt.Errorf("%w: malformed key %q", ErrInvalidKey, key)
	}
	ct, valid := ParseContentType(typ)
	if !valid {
		return "", "", fmt.Errorf("%w: unknown content type in key %q", ErrInvalidKey, key)
	}
	id := strings.TrimSuffix(file, keySuffix)
	if id == "" {
		return "", "", fmt.Errorf("%w: empty id in key %q", ErrInvalidKey, key)
	}
	return ct, id, nil
}

// IsContentKey reports whether key lives under ContentPrefix.
func IsContentKey(key string) bool {
	return strings.HasPrefix(key, ContentPrefix)
}

// TruncateSnippet shortens content to at most limit characters without
// splitting a word, appending "..." when anything was removed. Content with
// no space in the kept range is cut at the limit.
func TruncateSnippet(content string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(content) <= limit {
		return content
	}

	runes := []rune(content)
	kept := string(runes[:limit])
	if i := strings.LastIndex(kept, " "); i > 0 {
		kept = kept[:i]
	}
	return kept + snippetEllipsis
}
