package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/custodia-labs/knowledge-server/internal/connectors/github"
	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/logger"
)

// Webhook response statuses.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "already processed"
	StatusIgnored   = "ignored"
	StatusNoChanges = "no changes"
)

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Status    string `json:"status"`
	CommitSHA string `json:"commitSha,omitempty"`
	Changed   int    `json:"changed"`
	Deleted   int    `json:"deleted"`
}

// handleWebhook verifies a push delivery and starts a sync run in the
// background. Only deliveries that start a run are remembered; their
// redeliveries inside the dedupe window are acknowledged without running
// again.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "payload too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest, "reading body")
		return
	}

	if err := github.VerifySignature([]byte(s.cfg.WebhookSecret), body, r.Header.Get(github.HeaderSignature)); err != nil {
		logger.Warn("Rejected webhook delivery %s: %v", r.Header.Get(github.HeaderDelivery), err)
		respondError(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid signature")
		return
	}

	params, ok, err := github.ParsePush(r.Header.Get(github.HeaderEvent), body, s.cfg.Branch)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !ok {
		respond(w, r, http.StatusAccepted, WebhookResponse{Status: StatusIgnored})
		return
	}
	if params.IsEmpty() {
		respond(w, r, http.StatusAccepted, WebhookResponse{Status: StatusNoChanges, CommitSHA: params.CommitSHA})
		return
	}
	if err := params.Validate(); err != nil {
		respondErr(w, r, err)
		return
	}

	delivery := r.Header.Get(github.HeaderDelivery)
	if s.deliveries.Remember(delivery) {
		logger.Info("Delivery %s already processed", delivery)
		respond(w, r, http.StatusAccepted, WebhookResponse{Status: StatusDuplicate})
		return
	}

	s.startSync(delivery, params)
	respond(w, r, http.StatusAccepted, WebhookResponse{
		Status:    StatusAccepted,
		CommitSHA: params.CommitSHA,
		Changed:   len(params.ChangedFiles),
		Deleted:   len(params.DeletedFiles),
	})
}

func (s *Server) startSync(delivery string, params domain.SyncParams) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()

		ctx := s.ctx
		if s.cfg.SyncTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.SyncTimeout)
			defer cancel()
		}

		report, err := s.syncer.Sync(ctx, params)
		if err != nil {
			logger.Error("Sync for delivery %s failed: %v", delivery, err)
			return
		}
		logger.Info("Synced %s (delivery %s) in %s: %s", report.CommitSHA, delivery, report.Duration, report.Summary())
		for _, step := range report.Failures() {
			logger.Warn("  %s: %s after %d attempts: %v", step.FilePath, step.Outcome, step.Attempts, step.Err)
		}
	}()
}
