package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

var (
	searchLimit       int
	searchJSON        bool
	searchContentType string
	searchGroup       string
	searchRelease     string
	searchStatus      string
	searchTags        []string
	searchDocuments   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search knowledge entries",
	Long: `Embeds the query, retrieves the nearest entries matching the
filters and reranks them with the cross-encoder. Only entries the reranker
considers relevant are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVarP(&searchContentType, "type", "t", "", "content type filter")
	searchCmd.Flags().StringVar(&searchGroup, "group", "", "group filter")
	searchCmd.Flags().StringVar(&searchRelease, "release", "", "release filter")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "status filter")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "tag filter (repeatable)")
	searchCmd.Flags().BoolVar(&searchDocuments, "include-documents", false, "attach full documents to results")
	rootCmd.AddCommand(searchCmd)
}

func searchFilters() (domain.SearchFilters, error) {
	filters := domain.SearchFilters{
		Group:   searchGroup,
		Release: searchRelease,
		Status:  searchStatus,
		Tags:    searchTags,
	}
	if searchContentType != "" {
		ct, ok := domain.ParseContentType(searchContentType)
		if !ok {
			return filters, fmt.Errorf("unknown content type %q", searchContentType)
		}
		filters.ContentType = ct
	}
	return filters, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	filters, err := searchFilters()
	if err != nil {
		return err
	}

	a, closeApp, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	if a.Search == nil {
		return errors.New("search service not configured")
	}

	results, err := a.Search.Search(cmd.Context(), query, filters, domain.SearchOptions{
		IncludeDocuments: searchDocuments,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	if results == nil {
		results = []domain.SearchResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		title := r.Title
		if title == "" {
			title = r.ID
		}

		// Format: [N] Title (relevance)
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.RerankScore)
		cmd.Printf("      %s/%s\n", r.ContentType, r.ID)
		if r.Description != "" {
			cmd.Printf("      %s\n", r.Description)
		}
		cmd.Println()
	}
	return nil
}
