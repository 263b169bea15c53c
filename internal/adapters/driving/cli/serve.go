package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/knowledge-server/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driving/mcp"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

const shutdownTimeout = 30 * time.Second

var (
	serveAddr      string
	serveNoIndexer bool
	serveNoMCP     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the webhook receiver, the read API and the MCP endpoint.

Routes:
  POST /webhooks/github                  push deliveries (signed)
  GET  /api/v1/search?q=...              semantic search
  GET  /api/v1/entries                   list entries
  GET  /api/v1/entries/{contentType}/{id}
  /mcp                                   MCP streamable HTTP

Unless --no-indexer is set, the index consumer runs in the same process.
The memory store backend requires it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveNoIndexer, "no-indexer", false, "do not consume change notifications in this process")
	serveCmd.Flags().BoolVar(&serveNoMCP, "no-mcp", false, "do not mount the MCP endpoint")
	rootCmd.AddCommand(serveCmd)
}

// newServeHandler mounts the API and, when enabled, the MCP endpoint.
func newServeHandler(a *App) (*httpapi.Server, http.Handler, error) {
	if a.Search == nil || a.Documents == nil {
		return nil, nil, errors.New("search service not configured")
	}
	api := httpapi.New(a.Search, a.Documents, a.Sync, a.Deliveries, httpapi.Config{
		Branch:        a.Config.GitHub.Branch,
		WebhookSecret: a.Config.GitHub.WebhookSecret,
	})
	if serveNoMCP {
		return api, api, nil
	}

	mcpServer, err := mcp.NewServer(&mcp.Ports{Search: a.Search, Document: a.Documents})
	if err != nil {
		return nil, nil, err
	}
	r := chi.NewRouter()
	r.Mount("/mcp", mcpServer.Handler())
	r.Mount("/", api)
	return api, r, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger.SetTimestamps(true)

	a, closeApp, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	api, handler, err := newServeHandler(a)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Info("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if !serveNoIndexer && a.Indexer != nil {
		g.Go(func() error {
			return a.Indexer.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := errors.Join(srv.Shutdown(shutdownCtx), api.Shutdown(shutdownCtx))
		logger.Info("server stopped")
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
