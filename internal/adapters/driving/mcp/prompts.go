package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Prompt names.
const (
	PromptResearchTopic    = "research-topic"
	PromptExplainPattern   = "explain-pattern"
	PromptComparePractices = "compare-practices"
)

const (
	shallowResearch = `Provide a brief summary including:
1. Key definition from the lexicon
2. Most relevant artifact
3. One or two external resources`

	deepResearch = `Provide a comprehensive analysis including:
1. Core concepts and definitions from the lexicon
2. Related patterns and practices from artifacts
3. External resources from the library
4. Cross-references to other relevant topics
5. Gaps or areas needing more documentation`
)

func (s *Server) registerPrompts() {
	s.server.AddPrompt(&mcp.Prompt{
		Name:        PromptResearchTopic,
		Description: "Research a topic comprehensively across the knowledge base",
		Arguments: []*mcp.PromptArgument{
			{Name: "topic", Description: "Topic to research", Required: true},
			{Name: "depth", Description: "Research depth: shallow or deep"},
		},
	}, handleResearchTopic)

	s.server.AddPrompt(&mcp.Prompt{
		Name:        PromptExplainPattern,
		Description: "Explain a DAO pattern with examples and context from the knowledge base",
		Arguments: []*mcp.PromptArgument{
			{Name: "pattern", Description: "Pattern name to explain", Required: true},
		},
	}, handleExplainPattern)

	s.server.AddPrompt(&mcp.Prompt{
		Name:        PromptComparePractices,
		Description: "Compare two governance or coordination practices",
		Arguments: []*mcp.PromptArgument{
			{Name: "practice1", Description: "First practice to compare", Required: true},
			{Name: "practice2", Description: "Second practice to compare", Required: true},
		},
	}, handleComparePractices)
}

func handleResearchTopic(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := promptArgs(req)
	topic, err := requireArg(args, "topic")
	if err != nil {
		return nil, err
	}

	guide := shallowResearch
	switch args["depth"] {
	case "", "shallow":
	case "deep":
		guide = deepResearch
	default:
		return nil, fmt.Errorf("depth must be shallow or deep, got %q", args["depth"])
	}

	return userPrompt(fmt.Sprintf("Research the topic %q in the knowledge base.\n\n%s\n\n"+
		"Use the search_knowledge and define_term tools as needed.", topic, guide)), nil
}

func handleExplainPattern(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pattern, err := requireArg(promptArgs(req), "pattern")
	if err != nil {
		return nil, err
	}

	return userPrompt(fmt.Sprintf(`Explain the DAO pattern %q as documented in the knowledge base.

Include:
1. Definition from the lexicon
2. How it works in practice
3. Examples from documented experience
4. Related patterns
5. When to use vs. alternatives

Use the search_knowledge and define_term tools to find accurate information.`, pattern)), nil
}

func handleComparePractices(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := promptArgs(req)
	first, err := requireArg(args, "practice1")
	if err != nil {
		return nil, err
	}
	second, err := requireArg(args, "practice2")
	if err != nil {
		return nil, err
	}

	return userPrompt(fmt.Sprintf(`Compare %q and %q as governance/coordination approaches.

Structure your comparison:
1. Brief definition of each
2. Key similarities
3. Key differences
4. When to use each
5. How they might complement each other

Use the search_knowledge tool to find relevant documentation for both.`, first, second)), nil
}

func promptArgs(req *mcp.GetPromptRequest) map[string]string {
	if req == nil || req.Params == nil {
		return nil
	}
	return req.Params.Arguments
}

func requireArg(args map[string]string, name string) (string, error) {
	v := strings.TrimSpace(args[name])
	if v == "" {
		return "", fmt.Errorf("argument %s is required", name)
	}
	return v, nil
}

func userPrompt(text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: text},
		}},
	}
}
