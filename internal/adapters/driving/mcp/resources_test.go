package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestParseEntryURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		ct   domain.ContentType
		id   string
		ok   bool
	}{
		{name: "valid", uri: "knowledge://entries/pattern/commons", ct: domain.ContentTypePattern, id: "commons", ok: true},
		{name: "wrong scheme", uri: "docs://entries/pattern/commons"},
		{name: "missing id", uri: "knowledge://entries/pattern/"},
		{name: "no separator", uri: "knowledge://entries/pattern"},
		{name: "unknown type", uri: "knowledge://entries/novel/x"},
		{name: "empty", uri: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, id, ok := parseEntryURI(tt.uri)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ct, ct)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestServer_handleOntologyResource(t *testing.T) {
	server, _, _ := newTestServer(t)

	result, err := server.handleOntologyResource(context.Background(), readRequest(OntologyURI))
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var ontology []OntologyType
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &ontology))
	assert.Len(t, ontology, len(domain.ContentTypes()))

	for _, typ := range ontology {
		if typ.ContentType != "link" {
			continue
		}
		var names []string
		for _, f := range typ.Fields {
			names = append(names, f.Name)
		}
		assert.Contains(t, names, "url")
		assert.Contains(t, names, "title")
	}
}

func TestServer_handleGroupsResource(t *testing.T) {
	server, _, docs := newTestServer(t)
	docs.add(&domain.Document{ID: "dao-primitives", ContentType: domain.ContentTypeGroup,
		Metadata: domain.Metadata{"title": "DAO Primitives", "description": "Research cell"}})
	docs.add(&domain.Document{ID: "untitled", ContentType: domain.ContentTypeGroup})
	docs.add(&domain.Document{ID: "commons", ContentType: domain.ContentTypePattern})

	result, err := server.handleGroupsResource(context.Background(), readRequest(GroupsURI))
	require.NoError(t, err)
	assert.Equal(t, domain.ContentTypeGroup, docs.lastList.ContentType)

	var groups []Entry
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &groups))
	assert.Equal(t, []Entry{
		{ID: "dao-primitives", Title: "DAO Primitives", Description: "Research cell"},
		{ID: "untitled", Title: "untitled"},
	}, groups)
}

func TestServer_handleReleasesResource(t *testing.T) {
	server, _, docs := newTestServer(t)
	docs.add(&domain.Document{ID: "a", ContentType: domain.ContentTypePattern, Metadata: domain.Metadata{"release": "season-2"}})
	docs.add(&domain.Document{ID: "b", ContentType: domain.ContentTypeStudy, Metadata: domain.Metadata{"release": "season-1"}})
	docs.add(&domain.Document{ID: "c", ContentType: domain.ContentTypeStudy, Metadata: domain.Metadata{"release": "season-2"}})
	docs.add(&domain.Document{ID: "d", ContentType: domain.ContentTypeFile})

	result, err := server.handleReleasesResource(context.Background(), readRequest(ReleasesURI))
	require.NoError(t, err)

	var releases []Entry
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &releases))
	require.Len(t, releases, 2)
	assert.Equal(t, "season-1", releases[0].ID)
	assert.Equal(t, "season-2", releases[1].ID)
	assert.Equal(t, "Creative release: season-2", releases[1].Description)
}

func TestServer_handleEntryResource(t *testing.T) {
	ctx := context.Background()
	server, _, docs := newTestServer(t)
	docs.add(&domain.Document{ID: "commons", ContentType: domain.ContentTypePattern, Content: "body"})

	result, err := server.handleEntryResource(ctx, readRequest("knowledge://entries/pattern/commons"))
	require.NoError(t, err)
	var out DocumentOutput
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &out))
	assert.Equal(t, "body", out.Content)

	for _, uri := range []string{
		"knowledge://entries/pattern/missing",
		"knowledge://entries/novel/commons",
		"knowledge://entries/pattern/..",
	} {
		_, err := server.handleEntryResource(ctx, readRequest(uri))
		assert.Error(t, err, uri)
	}
}
