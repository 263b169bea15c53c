package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptRequest(args map[string]string) *mcp.GetPromptRequest {
	return &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Arguments: args}}
}

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, result.Messages, 1)
	assert.Equal(t, mcp.Role("user"), result.Messages[0].Role)
	text, ok := result.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleResearchTopic(t *testing.T) {
	ctx := context.Background()

	t.Run("shallow by default", func(t *testing.T) {
		result, err := handleResearchTopic(ctx, promptRequest(map[string]string{"topic": "commons"}))
		require.NoError(t, err)
		text := promptText(t, result)
		assert.Contains(t, text, `"commons"`)
		assert.Contains(t, text, "brief summary")
	})

	t.Run("deep", func(t *testing.T) {
		result, err := handleResearchTopic(ctx, promptRequest(map[string]string{"topic": "commons", "depth": "deep"}))
		require.NoError(t, err)
		assert.Contains(t, promptText(t, result), "comprehensive analysis")
	})

	t.Run("rejects unknown depth", func(t *testing.T) {
		_, err := handleResearchTopic(ctx, promptRequest(map[string]string{"topic": "commons", "depth": "medium"}))
		assert.Error(t, err)
	})

	t.Run("requires topic", func(t *testing.T) {
		_, err := handleResearchTopic(ctx, promptRequest(nil))
		assert.Error(t, err)
	})
}

func TestHandleComparePractices(t *testing.T) {
	result, err := handleComparePractices(context.Background(),
		promptRequest(map[string]string{"practice1": "sociocracy", "practice2": "holacracy"}))
	require.NoError(t, err)
	text := promptText(t, result)
	assert.Contains(t, text, `"sociocracy"`)
	assert.Contains(t, text, `"holacracy"`)

	_, err = handleComparePractices(context.Background(), promptRequest(map[string]string{"practice1": "sociocracy"}))
	assert.Error(t, err)
}

func TestHandleExplainPattern_RequiresPattern(t *testing.T) {
	_, err := handleExplainPattern(context.Background(), promptRequest(map[string]string{"pattern": "  "}))
	assert.Error(t, err)
}
