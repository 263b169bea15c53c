// Package frontmatter splits markdown files into a YAML metadata header and
// a body.
package frontmatter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.FrontmatterParser = (*Parser)(nil)

const (
	// DefaultMaxHeaderBytes bounds the YAML header size.
	DefaultMaxHeaderBytes = 10000

	// DefaultMaxAliases bounds YAML alias usage in a header.
	DefaultMaxAliases = 10
)

var (
	// ErrHeaderTooLarge is returned for headers above the size limit.
	ErrHeaderTooLarge = errors.New("frontmatter exceeds size limit")

	// ErrTooManyAliases is returned for headers with too many aliases.
	ErrTooManyAliases = errors.New("frontmatter exceeds alias limit")
)

// A header is delimited by "---" lines at the very start of the file.
var frontmatterPattern = regexp.MustCompile(`^---\r?\n([\s\S]*?)\r?\n---\r?\n?([\s\S]*)$`)

// Parser extracts frontmatter from markdown.
type Parser struct {
	maxHeaderBytes int
	maxAliases     int
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxHeaderBytes overrides DefaultMaxHeaderBytes.
func WithMaxHeaderBytes(n int) Option {
	return func(p *Parser) { p.maxHeaderBytes = n }
}

// WithMaxAliases overrides DefaultMaxAliases.
func WithMaxAliases(n int) Option {
	return func(p *Parser) { p.maxAliases = n }
}

// New creates a new frontmatter parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		maxHeaderBytes: DefaultMaxHeaderBytes,
		maxAliases:     DefaultMaxAliases,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse splits raw into metadata and body.
//
// Without a header the whole text (trimmed) is the body and metadata is
// empty. A header that is not a mapping yields empty metadata. A header
// that cannot be decoded, or breaks a limit, yields a *domain.ParseError
// in the result's Err field.
func (p *Parser) Parse(raw string) domain.ParsedMarkdown {
	m := frontmatterPattern.FindStringSubmatch(raw)
	if m == nil {
		return domain.ParsedMarkdown{Metadata: domain.Metadata{}, Body: strings.TrimSpace(raw)}
	}
	header, body := m[1], strings.TrimSpace(m[2])

	md, err := p.decode(header)
	if err != nil {
		return domain.ParsedMarkdown{Body: body, Err: &domain.ParseError{Err: err}}
	}
	return domain.ParsedMarkdown{Metadata: md, Body: body}
}

func (p *Parser) decode(header string) (domain.Metadata, error) {
	if len(header) > p.maxHeaderBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrHeaderTooLarge, len(header), p.maxHeaderBytes)
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(header), &root); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if n := countAliases(&root); n > p.maxAliases {
		return nil, fmt.Errorf("%w: %d aliases (max %d)", ErrTooManyAliases, n, p.maxAliases)
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return domain.Metadata{}, nil
	}

	var md map[string]any
	if err := root.Content[0].Decode(&md); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	out := make(domain.Metadata, len(md))
	for k, v := range md {
		out[k] = normalise(v)
	}
	return out, nil
}

func countAliases(n *yaml.Node) int {
	count := 0
	if n.Kind == yaml.AliasNode {
		count++
	}
	for _, c := range n.Content {
		count += countAliases(c)
	}
	return count
}

// normalise converts nested maps with non-string keys so metadata can be
// serialised as JSON.
func normalise(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalise(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalise(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalise(item)
		}
		return t
	default:
		return v
	}
}
