package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

var (
	documentJSON    bool
	documentContent bool
	listType        string
	listGroup       string
	listRelease     string
	listLimit       int
	listOffset      int
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Inspect stored entries",
	Long:  `List and view entries in the document store.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored entries",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [content-type] [id]",
	Short: "Show one entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocumentGet,
}

func init() {
	documentListCmd.Flags().StringVarP(&listType, "type", "t", "", "content type")
	documentListCmd.Flags().StringVar(&listGroup, "group", "", "group filter")
	documentListCmd.Flags().StringVar(&listRelease, "release", "", "release filter")
	documentListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "page size")
	documentListCmd.Flags().IntVar(&listOffset, "offset", 0, "entries to skip")
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "output as JSON")

	documentGetCmd.Flags().BoolVar(&documentContent, "content", false, "print the markdown body")
	documentGetCmd.Flags().BoolVar(&documentJSON, "json", false, "output as JSON")

	documentCmd.AddCommand(documentListCmd, documentGetCmd)
	rootCmd.AddCommand(documentCmd)
}

func parseContentType(raw string) (domain.ContentType, error) {
	ct, ok := domain.ParseContentType(raw)
	if !ok {
		names := make([]string, 0, len(domain.ContentTypes()))
		for _, c := range domain.ContentTypes() {
			names = append(names, string(c))
		}
		return "", fmt.Errorf("unknown content type %q (one of %s)", raw, strings.Join(names, ", "))
	}
	return ct, nil
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	params := domain.ListParams{Group: listGroup, Release: listRelease, Limit: listLimit, Offset: listOffset}
	if listType != "" {
		ct, err := parseContentType(listType)
		if err != nil {
			return err
		}
		params.ContentType = ct
	}

	a, closeApp, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	if a.Documents == nil {
		return errors.New("document service not configured")
	}

	page, err := a.Documents.List(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	if documentJSON {
		return printJSON(cmd, page)
	}
	if len(page.Documents) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for i := range page.Documents {
		doc := &page.Documents[i]
		cmd.Printf("  %-40s %s\n", string(doc.ContentType)+"/"+doc.ID, doc.Title())
	}
	cmd.Printf("\n%d-%d of %d\n", page.Offset+1, page.Offset+len(page.Documents), page.Total)
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	ct, err := parseContentType(args[0])
	if err != nil {
		return err
	}

	a, closeApp, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	if a.Documents == nil {
		return errors.New("document service not configured")
	}

	doc, err := a.Documents.Get(cmd.Context(), ct, args[1])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("document not found: %s/%s", ct, args[1])
		}
		return fmt.Errorf("getting document: %w", err)
	}

	if documentJSON {
		return printJSON(cmd, doc)
	}
	if documentContent {
		cmd.Print(doc.Content)
		return nil
	}

	cmd.Printf("ID:        %s\n", doc.ID)
	cmd.Printf("Type:      %s\n", doc.ContentType)
	cmd.Printf("Title:     %s\n", doc.Title())
	cmd.Printf("Path:      %s\n", doc.Path)
	cmd.Printf("Commit:    %s\n", doc.CommitSHA)
	cmd.Printf("Synced:    %s\n", doc.SyncedAt.Format("2006-01-02 15:04:05"))

	if len(doc.Metadata) > 0 {
		cmd.Println("Metadata:")
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("  %s: %v\n", k, doc.Metadata[k])
		}
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
