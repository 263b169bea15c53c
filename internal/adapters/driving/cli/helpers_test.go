package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/cache/lru"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/config/file"
	"github.com/custodia-labs/knowledge-server/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/services"
)

type stubSearch struct {
	query   string
	filters domain.SearchFilters
	opts    domain.SearchOptions
	results []domain.SearchResult
	err     error
}

func (s *stubSearch) Search(_ context.Context, query string, filters domain.SearchFilters, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	s.query, s.filters, s.opts = query, filters, opts
	return s.results, s.err
}

type stubSync struct {
	runs   []domain.SyncParams
	failed map[string]error
}

func (s *stubSync) Sync(_ context.Context, params domain.SyncParams) (*domain.SyncReport, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s.runs = append(s.runs, params)
	report := &domain.SyncReport{CommitSHA: params.CommitSHA, Duration: 1500 * time.Microsecond}
	for _, p := range params.ChangedFiles {
		step := domain.StepRecord{FilePath: p, CommitSHA: params.CommitSHA, Outcome: domain.OutcomeStored, Attempts: 1}
		if err, ok := s.failed[p]; ok {
			step.Outcome, step.Attempts, step.Err = domain.OutcomeFailedTerminal, 1, err
		}
		report.Steps = append(report.Steps, step)
	}
	for _, p := range params.DeletedFiles {
		report.Steps = append(report.Steps, domain.StepRecord{FilePath: p, CommitSHA: params.CommitSHA, Outcome: domain.OutcomeDeleted, Attempts: 1})
	}
	return report, nil
}

type stubSource struct {
	base, head, ref string
	params          domain.SyncParams
	err             error
}

func (s *stubSource) CompareCommits(_ context.Context, base, head string) (domain.SyncParams, error) {
	s.base, s.head = base, head
	return s.params, s.err
}

func (s *stubSource) ListMarkdown(_ context.Context, ref string) (domain.SyncParams, error) {
	s.ref = ref
	return s.params, s.err
}

type testServices struct {
	search *stubSearch
	sync   *stubSync
	source *stubSource
	store  *memory.DocumentStore
}

// setupTestServices injects an app backed by stubs and an in-memory store.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		search: &stubSearch{},
		sync:   &stubSync{},
		source: &stubSource{},
		store:  memory.NewDocumentStore(),
	}
	app = &App{
		Config:     file.Default(),
		Search:     ts.search,
		Documents:  services.NewDocumentService(ts.store),
		Sync:       ts.sync,
		Deliveries: lru.NewDeliveryLog(10, time.Minute),
		Source:     ts.source,
	}
	return ts, func() { app = nil }
}

func (ts *testServices) put(t *testing.T, ct domain.ContentType, id string, md domain.Metadata) {
	t.Helper()
	doc := &domain.Document{
		ID:          id,
		ContentType: ct,
		Path:        "notes/" + id + ".md",
		Metadata:    md,
		Content:     "body of " + id,
		CommitSHA:   "abc123",
		SyncedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	key, err := doc.Key()
	require.NoError(t, err)
	require.NoError(t, ts.store.Put(context.Background(), key, doc))
}

// resetFlags restores every flag to its default so commands can run
// repeatedly in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

var errBoom = errors.New("boom")
