package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driving"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// Ensure SyncService implements the interface.
var _ driving.SyncService = (*SyncService)(nil)

// SyncConfig controls retries and concurrency of a sync run.
type SyncConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the first backoff interval; later ones grow exponentially.
	InitialDelay time.Duration
	// MaxDelay caps a single backoff interval. Zero means one hour.
	MaxDelay time.Duration
	// StepTimeout bounds one attempt.
	StepTimeout time.Duration
	// Workers bounds how many files are processed at once.
	Workers int
}

// DefaultSyncConfig returns the production retry policy.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxRetries:   domain.DefaultSyncRetries,
		InitialDelay: domain.DefaultSyncInitialDelay,
		StepTimeout:  domain.DefaultSyncStepTimeout,
		Workers:      domain.DefaultSyncWorkers,
	}
}

// stepFunc performs one attempt of one file. A nil error must come with a
// success outcome; a non-nil error with a failure outcome.
type stepFunc func(ctx context.Context, path, commitSHA string) (domain.StepOutcome, error)

// SyncService applies repository changes to the document store. Each file is
// an independent unit: its failure never affects siblings.
type SyncService struct {
	fetcher driven.SourceFetcher
	parser  driven.FrontmatterParser
	store   driven.DocumentStore
	cfg     SyncConfig
	now     func() time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(
	fetcher driven.SourceFetcher,
	parser driven.FrontmatterParser,
	store driven.DocumentStore,
	cfg SyncConfig,
) *SyncService {
	if cfg.Workers <= 0 {
		cfg.Workers = domain.DefaultSyncWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &SyncService{
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Sync processes changed then deleted files in a bounded worker pool.
func (s *SyncService) Sync(ctx context.Context, params domain.SyncParams) (*domain.SyncReport, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := s.now()
	logger.Info("Starting sync at %s: %d changed, %d deleted",
		params.CommitSHA, len(params.ChangedFiles), len(params.DeletedFiles))

	type job struct {
		path string
		step stepFunc
	}
	jobs := make([]job, 0, len(params.ChangedFiles)+len(params.DeletedFiles))
	for _, p := range params.ChangedFiles {
		jobs = append(jobs, job{path: p, step: s.syncFile})
	}
	for _, p := range params.DeletedFiles {
		jobs = append(jobs, job{path: p, step: s.deleteFile})
	}

	steps := make([]domain.StepRecord, len(jobs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, j := range jobs {
		g.Go(func() error {
			steps[i] = s.runStep(ctx, j.path, params.CommitSHA, j.step)
			return nil
		})
	}
	_ = g.Wait()

	report := &domain.SyncReport{
		CommitSHA: params.CommitSHA,
		Steps:     steps,
		Duration:  s.now().Sub(start),
	}
	logger.Info("Sync complete at %s: %s", params.CommitSHA, report.Summary())
	return report, nil
}

// runStep drives step with exponential backoff until it succeeds, fails
// terminally, or runs out of attempts.
func (s *SyncService) runStep(ctx context.Context, path, commitSHA string, step stepFunc) domain.StepRecord {
	rec := domain.StepRecord{FilePath: path, CommitSHA: commitSHA}
	ctx, span := tracer.Start(ctx, "SyncService.step", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("commit", commitSHA),
	))
	defer func() {
		span.SetAttributes(attribute.String("outcome", rec.Outcome.String()), attribute.Int("attempts", rec.Attempts))
		endSpan(span, rec.Err)
	}()

	op := func() error {
		rec.Attempts++
		attemptCtx, cancel := s.attemptContext(ctx)
		defer cancel()

		outcome, err := step(attemptCtx, path, commitSHA)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			outcome = domain.OutcomeFailedRetryable
			err = &domain.RetryableFetchError{Path: path, Err: fmt.Errorf("attempt timed out after %s: %w", s.cfg.StepTimeout, err)}
		}
		rec.Outcome, rec.Err = outcome, err

		switch {
		case err == nil:
			return nil
		case outcome == domain.OutcomeFailedRetryable:
			logger.Debug("Attempt %d for %s failed: %v", rec.Attempts, path, err)
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	_ = backoff.Retry(op, s.newBackOff(ctx))

	if rec.Outcome.Failed() {
		logger.Warn("Sync %s: %s after %d attempt(s): %v", path, rec.Outcome, rec.Attempts, rec.Err)
	} else {
		logger.Debug("Sync %s: %s", path, rec.Outcome)
	}
	return rec
}

func (s *SyncService) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StepTimeout)
}

func (s *SyncService) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.InitialDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.MaxInterval = time.Hour
	if s.cfg.MaxDelay > 0 {
		eb.MaxInterval = s.cfg.MaxDelay
	}
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.MaxRetries)), ctx)
}

// syncFile fetches, parses and stores or removes one changed file.
func (s *SyncService) syncFile(ctx context.Context, path, commitSHA string) (domain.StepOutcome, error) {
	raw, err := s.fetcher.FetchFile(ctx, path, commitSHA)
	if err != nil {
		return classifyFetch(path, err)
	}

	parsed := s.parser.Parse(raw)
	if parsed.Err != nil {
		var perr *domain.ParseError
		if errors.As(parsed.Err, &perr) && perr.Path == "" {
			perr.Path = path
		}
		return domain.OutcomeFailedTerminal, parsed.Err
	}

	contentType := domain.ResolveContentType(parsed.Metadata, path)
	id, err := domain.GenerateID(path)
	if err != nil {
		return domain.OutcomeFailedTerminal, err
	}
	key, err := domain.StoreKey(contentType, id)
	if err != nil {
		return domain.OutcomeFailedTerminal, err
	}

	if !domain.ShouldStore(parsed.Metadata) {
		exists, err := s.store.Head(ctx, key)
		if err != nil {
			return domain.OutcomeFailedRetryable, &domain.TransientIndexError{Op: "head " + key, Err: err}
		}
		if !exists {
			return domain.OutcomeSkipped, nil
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return domain.OutcomeFailedRetryable, &domain.TransientIndexError{Op: "delete " + key, Err: err}
		}
		return domain.OutcomeDeleted, nil
	}

	doc := &domain.Document{
		ID:          id,
		ContentType: contentType,
		Path:        path,
		Metadata:    parsed.Metadata,
		Content:     parsed.Body,
		SyncedAt:    s.now().UTC(),
		CommitSHA:   commitSHA,
	}
	if err := s.store.Put(ctx, key, doc); err != nil {
		return domain.OutcomeFailedRetryable, &domain.TransientIndexError{Op: "put " + key, Err: err}
	}
	return domain.OutcomeStored, nil
}

// deleteFile removes the entry a deleted repository path mapped to.
// The content type can only be inferred from the path since the file and
// its frontmatter are gone.
func (s *SyncService) deleteFile(ctx context.Context, path, _ string) (domain.StepOutcome, error) {
	id, err := domain.GenerateID(path)
	if err != nil {
		return domain.OutcomeFailedTerminal, err
	}
	key, err := domain.StoreKey(domain.InferContentType(path), id)
	if err != nil {
		return domain.OutcomeFailedTerminal, err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return domain.OutcomeFailedRetryable, &domain.TransientIndexError{Op: "delete " + key, Err: err}
	}
	return domain.OutcomeDeleted, nil
}

func classifyFetch(path string, err error) (domain.StepOutcome, error) {
	var terminal *domain.TerminalFetchError
	if errors.As(err, &terminal) {
		return domain.OutcomeFailedTerminal, err
	}
	var retryable *domain.RetryableFetchError
	if errors.As(err, &retryable) {
		return domain.OutcomeFailedRetryable, err
	}
	return domain.OutcomeFailedRetryable, &domain.RetryableFetchError{Path: path, Err: err}
}
