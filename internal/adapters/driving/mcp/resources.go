package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

const uriScheme = "knowledge://"

// Resource URIs.
const (
	OntologyURI = uriScheme + "data/ontology"
	GroupsURI   = uriScheme + "data/groups"
	ReleasesURI = uriScheme + "data/releases"
	entryPrefix = uriScheme + "entries/"
)

// Entry is a group or release in a resource listing.
type Entry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// OntologyType documents one content type.
type OntologyType struct {
	ContentType string      `json:"contentType"`
	Fields      []FieldInfo `json:"fields"`
}

// FieldInfo documents one frontmatter field.
type FieldInfo struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required,omitempty"`
	OneOf    []string `json:"oneOf,omitempty"`
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         OntologyURI,
		Name:        "ontology",
		Description: "Content types and their frontmatter schema",
		MIMEType:    "application/json",
	}, s.handleOntologyResource)

	s.server.AddResource(&mcp.Resource{
		URI:         GroupsURI,
		Name:        "groups",
		Description: "Groups and cells with their descriptions",
		MIMEType:    "application/json",
	}, s.handleGroupsResource)

	s.server.AddResource(&mcp.Resource{
		URI:         ReleasesURI,
		Name:        "releases",
		Description: "Creative releases referenced by published entries",
		MIMEType:    "application/json",
	}, s.handleReleasesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: entryPrefix + "{contentType}/{id}",
		Name:        "entry",
		Description: "A single knowledge entry as JSON",
		MIMEType:    "application/json",
	}, s.handleEntryResource)
}

func (s *Server) handleOntologyResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	types := domain.ContentTypes()
	ontology := make([]OntologyType, len(types))
	for i, ct := range types {
		rules := domain.FieldRules(ct)
		fields := make([]FieldInfo, len(rules))
		for j, r := range rules {
			fields[j] = FieldInfo{Name: r.Name, Kind: r.Kind.String(), Required: r.Required, OneOf: r.OneOf}
		}
		ontology[i] = OntologyType{ContentType: string(ct), Fields: fields}
	}
	return jsonResource(req.Params.URI, ontology)
}

func (s *Server) handleGroupsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	groups, err := s.listGroups(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, groups)
}

func (s *Server) handleReleasesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	releases, err := s.listReleases(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, releases)
}

// listGroups returns every group document, titled by id when untitled.
func (s *Server) listGroups(ctx context.Context) ([]Entry, error) {
	page, err := s.ports.Document.List(ctx, domain.ListParams{
		ContentType: domain.ContentTypeGroup,
		Limit:       driven.MaxListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}

	groups := make([]Entry, 0, len(page.Documents))
	for i := range page.Documents {
		doc := &page.Documents[i]
		title := doc.Title()
		if title == "" {
			title = doc.ID
		}
		groups = append(groups, Entry{ID: doc.ID, Title: title, Description: doc.Description()})
	}
	return groups, nil
}

// listReleases collects the distinct release values across all documents.
func (s *Server) listReleases(ctx context.Context) ([]Entry, error) {
	page, err := s.ports.Document.List(ctx, domain.ListParams{Limit: driven.MaxListLimit})
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}

	seen := make(map[string]bool)
	releases := []Entry{}
	for i := range page.Documents {
		release := page.Documents[i].Metadata.String("release")
		if release == "" || seen[release] {
			continue
		}
		seen[release] = true
		releases = append(releases, Entry{ID: release, Title: release, Description: "Creative release: " + release})
	}
	sort.Slice(releases, func(i, j int) bool { return releases[i].ID < releases[j].ID })
	return releases, nil
}

func (s *Server) handleEntryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	ct, id, ok := parseEntryURI(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Document.Get(ctx, ct, id)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidKey) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry: %w", err)
	}
	return jsonResource(req.Params.URI, toDocumentOutput(doc))
}

// parseEntryURI splits knowledge://entries/{contentType}/{id}.
func parseEntryURI(uri string) (domain.ContentType, string, bool) {
	rest, ok := strings.CutPrefix(uri, entryPrefix)
	if !ok {
		return "", "", false
	}
	typ, id, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", "", false
	}
	ct, ok := domain.ParseContentType(typ)
	if !ok {
		return "", "", false
	}
	return ct, id, true
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
