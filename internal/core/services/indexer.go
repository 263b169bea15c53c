package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driving"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// Ensure IndexSynchronizer implements the interface.
var _ driving.IndexSynchronizer = (*IndexSynchronizer)(nil)

// IndexerConfig controls the consume loop.
type IndexerConfig struct {
	// BatchSize is the maximum number of messages per receive.
	BatchSize int
	// PollInterval is the wait after an empty receive.
	PollInterval time.Duration
}

// DefaultIndexerConfig returns the consume loop defaults.
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{BatchSize: 10, PollInterval: time.Second}
}

// BatchStats counts per-message decisions of one batch.
type BatchStats struct {
	Acked   int
	Dropped int
	Retried int
}

// IndexSynchronizer applies document store change notifications to the
// vector index, one message at a time.
type IndexSynchronizer struct {
	store    driven.DocumentStore
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	queue    driven.ChangeQueue
	cfg      IndexerConfig
}

// NewIndexSynchronizer creates a new index synchroniser. queue is only
// needed by Run.
func NewIndexSynchronizer(
	store driven.DocumentStore,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	queue driven.ChangeQueue,
	cfg IndexerConfig,
) *IndexSynchronizer {
	defaults := DefaultIndexerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	return &IndexSynchronizer{
		store:    store,
		embedder: embedder,
		index:    index,
		queue:    queue,
		cfg:      cfg,
	}
}

// Handle decides the fate of one notification body.
//
// Malformed notifications and content keys are dropped. Keys outside the content prefix and
// creates for documents that no longer exist are acknowledged without
// touching the index. Store, embedding and index failures ask for retry.
func (s *IndexSynchronizer) Handle(ctx context.Context, body []byte) (domain.MessageResult, error) {
	n, err := domain.DecodeChangeNotification(body)
	if err != nil {
		return domain.MessageDrop, err
	}

	key := n.Object.Key
	if !domain.IsContentKey(key) {
		logger.Debug("Ignoring non-content key %s", key)
		return domain.MessageAck, nil
	}
	_, id, err := domain.ParseStoreKey(key)
	if err != nil {
		return domain.MessageDrop, &domain.ValidationError{Field: "object.key", Reason: err.Error()}
	}

	switch n.EventType {
	case domain.EventObjectCreate:
		return s.upsert(ctx, key)
	case domain.EventObjectDelete:
		if err := s.index.DeleteByIDs(ctx, []string{id}); err != nil {
			return domain.MessageRetry, &domain.TransientIndexError{Op: "delete vector " + id, Err: err}
		}
		logger.Debug("Removed vector %s", id)
		return domain.MessageAck, nil
	default:
		return domain.MessageDrop, &domain.ValidationError{Field: "eventType", Reason: string(n.EventType)}
	}
}

func (s *IndexSynchronizer) upsert(ctx context.Context, key string) (domain.MessageResult, error) {
	doc, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("Document %s gone before indexing", key)
		return domain.MessageAck, nil
	}
	if err != nil {
		return domain.MessageRetry, &domain.TransientIndexError{Op: "get " + key, Err: err}
	}

	values, err := s.embedder.Embed(ctx, doc.EmbeddingText())
	if err != nil {
		return domain.MessageRetry, &domain.TransientIndexError{Op: "embed " + key, Err: err}
	}

	rec, err := domain.NewVectorRecord(doc, key, values)
	if err != nil {
		return domain.MessageDrop, fmt.Errorf("build vector record %s: %w", key, err)
	}

	if err := s.index.Upsert(ctx, []domain.VectorRecord{*rec}); err != nil {
		return domain.MessageRetry, &domain.TransientIndexError{Op: "upsert vector " + rec.ID, Err: err}
	}
	logger.Debug("Indexed %s as %s", key, rec.ID)
	return domain.MessageAck, nil
}

// HandleBatch processes messages in order, acknowledging each one
// individually according to its result.
func (s *IndexSynchronizer) HandleBatch(ctx context.Context, msgs []driven.Message) BatchStats {
	var stats BatchStats
	for _, msg := range msgs {
		result, err := s.Handle(ctx, msg.Body())

		switch result {
		case domain.MessageAck:
			stats.Acked++
		case domain.MessageDrop:
			stats.Dropped++
			logger.Error("Dropping message %s: %v", msg.ID(), err)
		case domain.MessageRetry:
			stats.Retried++
			logger.Warn("Message %s will be retried (attempt %d): %v", msg.ID(), msg.Attempts(), err)
		}

		if result == domain.MessageRetry {
			if rerr := msg.Retry(ctx); rerr != nil {
				logger.Error("Retry message %s: %v", msg.ID(), rerr)
			}
			continue
		}
		if aerr := msg.Ack(ctx); aerr != nil {
			logger.Error("Ack message %s: %v", msg.ID(), aerr)
		}
	}
	return stats
}

// Run consumes the change queue until ctx is cancelled.
func (s *IndexSynchronizer) Run(ctx context.Context) error {
	if s.queue == nil {
		return errors.New("change queue not configured")
	}
	logger.Info("Index synchroniser started (batch size %d)", s.cfg.BatchSize)

	for {
		msgs, err := s.queue.Receive(ctx, s.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrQueueClosed) {
				logger.Info("Index synchroniser stopped")
				return nil
			}
			logger.Error("Receive: %v", err)
		}

		if len(msgs) > 0 {
			stats := s.HandleBatch(ctx, msgs)
			logger.Debug("Batch: acked=%d dropped=%d retried=%d", stats.Acked, stats.Dropped, stats.Retried)
			continue
		}

		select {
		case <-ctx.Done():
			logger.Info("Index synchroniser stopped")
			return nil
		case <-time.After(s.cfg.PollInterval):
		}
	}
}
