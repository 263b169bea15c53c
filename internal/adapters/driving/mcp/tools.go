package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// FiltersInput narrows a search.
type FiltersInput struct {
	ContentType string   `json:"contentType,omitempty" jsonschema:"filter by content type (pattern, tag, article, ...)"`
	Group       string   `json:"group,omitempty" jsonschema:"filter by group or cell"`
	Release     string   `json:"release,omitempty" jsonschema:"filter by creative release"`
	Tags        []string `json:"tags,omitempty" jsonschema:"keep results carrying any of these tags"`
}

// SearchInput is the input schema for the search tools.
type SearchInput struct {
	Query   string        `json:"query" jsonschema:"natural language search query"`
	Filters *FiltersInput `json:"filters,omitempty" jsonschema:"optional metadata filters"`
}

// SearchOutput is the output schema for the search tools.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput is a single ranked hit.
type SearchResultOutput struct {
	ID          string          `json:"id"`
	ContentType string          `json:"contentType"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Score       float64         `json:"score"`
	RerankScore float64         `json:"rerankScore"`
	Document    *DocumentOutput `json:"document,omitempty"`
}

// DocumentInput identifies a stored document.
type DocumentInput struct {
	ContentType string `json:"contentType" jsonschema:"content type of the document"`
	ID          string `json:"id" jsonschema:"document id"`
}

// DocumentOutput is a stored document.
type DocumentOutput struct {
	ID          string         `json:"id"`
	ContentType string         `json:"contentType"`
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Content     string         `json:"content"`
	CommitSHA   string         `json:"commitSha,omitempty"`
	SyncedAt    string         `json:"syncedAt,omitempty"`
}

// DefineInput names a lexicon term.
type DefineInput struct {
	Term string `json:"term" jsonschema:"term to define"`
}

// DefineOutput is a lexicon definition.
type DefineOutput struct {
	Term       string `json:"term"`
	Found      bool   `json:"found"`
	Definition string `json:"definition,omitempty"`
}

// LexiconInput is a keyword to look up among lexicon terms.
type LexiconInput struct {
	Keyword string `json:"keyword" jsonschema:"keyword to search"`
}

// LexiconOutput lists matching lexicon terms.
type LexiconOutput struct {
	Terms []LexiconTerm `json:"terms"`
	Count int           `json:"count"`
}

// LexiconTerm is one matching term.
type LexiconTerm struct {
	Term        string `json:"term"`
	Description string `json:"description"`
}

// ListInput takes no arguments.
type ListInput struct{}

// ListOutput is a listing of groups or releases.
type ListOutput struct {
	Entries []Entry `json:"entries"`
	Count   int     `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "search_knowledge",
		Description: "Search the knowledge base for documents about DAO patterns, governance practices, " +
			"regenerative economics and web3 coordination. Returns reranked matches with metadata.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_with_documents",
		Description: "Search the knowledge base and return the full document for every match.",
	}, s.handleSearchWithDocuments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document",
		Description: "Get the full content of a document by its content type and id.",
	}, s.handleGetDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "define_term",
		Description: "Get the definition of a term from the lexicon. Use this for 'what is X?' questions.",
	}, s.handleDefineTerm)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_lexicon",
		Description: "Search lexicon entries by keyword. Returns matching terms with definitions.",
	}, s.handleSearchLexicon)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_groups",
		Description: "List all groups and cells in the ecosystem.",
	}, s.handleListGroups)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_releases",
		Description: "List creative releases with their metadata.",
	}, s.handleListReleases)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return s.search(ctx, input, domain.SearchOptions{})
}

func (s *Server) handleSearchWithDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return s.search(ctx, input, domain.SearchOptions{IncludeDocuments: true})
}

func (s *Server) search(ctx context.Context, input SearchInput, opts domain.SearchOptions) (*mcp.CallToolResult, SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}
	filters, err := input.Filters.toDomain()
	if err != nil {
		return nil, SearchOutput{}, err
	}

	results, err := s.ports.Search.Search(ctx, query, filters, opts)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("search: %w", err)
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		r := &results[i]
		output.Results[i] = SearchResultOutput{
			ID:          r.ID,
			ContentType: string(r.ContentType),
			Title:       r.Title,
			Description: r.Description,
			Score:       r.Score,
			RerankScore: r.RerankScore,
		}
		if r.Document != nil {
			output.Results[i].Document = toDocumentOutput(r.Document)
		}
	}
	return nil, output, nil
}

func (s *Server) handleGetDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	ct, ok := domain.ParseContentType(input.ContentType)
	if !ok {
		return nil, DocumentOutput{}, fmt.Errorf("unknown content type %q", input.ContentType)
	}
	doc, err := s.ports.Document.Get(ctx, ct, input.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, DocumentOutput{}, errors.New("document not found")
	}
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	return nil, *toDocumentOutput(doc), nil
}

// handleDefineTerm looks the term up as a tag document. Terms are matched
// by their lowercase, hyphenated form.
func (s *Server) handleDefineTerm(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DefineInput,
) (*mcp.CallToolResult, DefineOutput, error) {
	id := strings.Join(strings.Fields(strings.ToLower(input.Term)), "-")
	out := DefineOutput{Term: input.Term}
	if id == "" {
		return nil, out, errors.New("term is required")
	}

	doc, err := s.ports.Document.Get(ctx, domain.ContentTypeTag, id)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidKey):
		return nil, out, nil
	case err != nil:
		return nil, out, err
	}

	out.Found = true
	out.Definition = doc.Description()
	if out.Definition == "" {
		out.Definition = doc.Content
	}
	return nil, out, nil
}

// handleSearchLexicon runs a search restricted to tag documents.
func (s *Server) handleSearchLexicon(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LexiconInput,
) (*mcp.CallToolResult, LexiconOutput, error) {
	keyword := strings.TrimSpace(input.Keyword)
	if keyword == "" {
		return nil, LexiconOutput{}, errors.New("keyword is required")
	}

	results, err := s.ports.Search.Search(ctx, keyword,
		domain.SearchFilters{ContentType: domain.ContentTypeTag}, domain.SearchOptions{})
	if err != nil {
		return nil, LexiconOutput{}, fmt.Errorf("search lexicon: %w", err)
	}

	out := LexiconOutput{Terms: make([]LexiconTerm, len(results)), Count: len(results)}
	for i, r := range results {
		out.Terms[i] = LexiconTerm{Term: r.Title, Description: r.Description}
	}
	return nil, out, nil
}

func (s *Server) handleListGroups(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	groups, err := s.listGroups(ctx)
	if err != nil {
		return nil, ListOutput{}, err
	}
	return nil, ListOutput{Entries: groups, Count: len(groups)}, nil
}

func (s *Server) handleListReleases(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	releases, err := s.listReleases(ctx)
	if err != nil {
		return nil, ListOutput{}, err
	}
	return nil, ListOutput{Entries: releases, Count: len(releases)}, nil
}

func (f *FiltersInput) toDomain() (domain.SearchFilters, error) {
	if f == nil {
		return domain.SearchFilters{}, nil
	}
	filters := domain.SearchFilters{Group: f.Group, Release: f.Release, Tags: f.Tags}
	if f.ContentType != "" {
		ct, ok := domain.ParseContentType(f.ContentType)
		if !ok {
			return domain.SearchFilters{}, fmt.Errorf("unknown content type %q", f.ContentType)
		}
		filters.ContentType = ct
	}
	return filters, nil
}

func toDocumentOutput(doc *domain.Document) *DocumentOutput {
	out := &DocumentOutput{
		ID:          doc.ID,
		ContentType: string(doc.ContentType),
		Path:        doc.Path,
		Title:       doc.Title(),
		Metadata:    doc.Metadata,
		Content:     doc.Content,
		CommitSHA:   doc.CommitSHA,
	}
	if !doc.SyncedAt.IsZero() {
		out.SyncedAt = doc.SyncedAt.UTC().Format(time.RFC3339)
	}
	return out
}
