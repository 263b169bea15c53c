package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil search service returns error", func(t *testing.T) {
		server, err := NewServer(&Ports{Document: &mockDocumentService{}})
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingSearchService)
	})

	t.Run("nil document service returns error", func(t *testing.T) {
		_, err := NewServer(&Ports{Search: &mockSearchService{}})
		assert.ErrorIs(t, err, ErrMissingDocumentService)
	})

	t.Run("valid ports creates server", func(t *testing.T) {
		ports, _, _ := newPorts()
		server, err := NewServer(ports)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.Handler())
	})
}

func TestServer_ListsToolsOverTransport(t *testing.T) {
	ctx := context.Background()
	ports, _, _ := newPorts()
	server, err := NewServer(ports)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"search_knowledge", "search_with_documents", "get_document", "define_term",
		"search_lexicon", "list_groups", "list_releases",
	}, names)

	prompts, err := session.ListPrompts(ctx, nil)
	require.NoError(t, err)
	var promptNames []string
	for _, p := range prompts.Prompts {
		promptNames = append(promptNames, p.Name)
	}
	assert.ElementsMatch(t, []string{PromptResearchTopic, PromptExplainPattern, PromptComparePractices}, promptNames)

	result, err := session.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      PromptExplainPattern,
		Arguments: map[string]string{"pattern": "cell governance"},
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	text, ok := result.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"cell governance"`)
}
