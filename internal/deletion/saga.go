package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
	"studyforge/internal/services"
	"studyforge/internal/vectorstore"
)

// Result describes how one permanent delete ended.
type Result struct {
	ContentID string
	SagaID    string
	Outcome   Outcome
	Rows      int64
	Err       error
}

// Delete permanently removes a content item and everything derived from it.
// The returned error is non-nil unless the saga completed.
func (s *Service) Delete(ctx context.Context, contentID, requester string) (Result, error) {
	item, err := s.load(ctx, contentID, requester, "delete")
	if err != nil {
		return Result{ContentID: contentID, Err: err}, err
	}
	saga, err := s.store.CreateSaga(ctx, contentID, requester)
	if err != nil {
		err = services.Wrap(services.ErrTransient, stageName, "open saga", "", err)
		return Result{ContentID: contentID, Err: err}, err
	}
	res := s.advance(ctx, saga, item.BlobKey)
	return res, res.Err
}

// advance runs the saga forward from its last checkpoint. Every phase is
// idempotent so a stalled saga can be advanced again.
func (s *Service) advance(ctx context.Context, saga *content.DeletionSaga, blobKey string) Result {
	res := Result{ContentID: saga.ContentID, SagaID: saga.ID}
	logger := logging.WithContext(services.WithContentID(ctx, saga.ContentID), s.logger).With(logging.String("saga_id", saga.ID))

	if saga.Phase == content.PhaseStarted {
		if err := s.deleteVectors(ctx, saga.ContentID); err != nil {
			saga.Status = content.SagaAborted
			saga.LastError = err.Error()
			if cpErr := s.store.UpdateSaga(ctx, saga); cpErr != nil {
				logger.Error("saga checkpoint failed", logging.Error(cpErr))
			}
			recordOutcome(OutcomeAborted)
			logging.WarnWithContext(logger, "deletion aborted before primary delete", "deletion_aborted",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "retry the delete once the vector store is reachable"),
				logging.String(logging.FieldImpact, "content left intact"),
			)
			res.Outcome = OutcomeAborted
			res.Err = services.Wrap(services.ErrTransient, stageName, "delete vectors", "vector delete failed; content left intact", err)
			return res
		}
		// Vectors are gone from here on, so any failure before the primary
		// delete leaves the stores inconsistent.
		if err := s.checkpoint(ctx, saga, content.PhaseVectorsDeleted); err != nil {
			return s.markInconsistent(ctx, saga, err, res)
		}
	}

	if saga.Phase == content.PhaseVectorsDeleted {
		if s.blobs != nil && blobKey != "" {
			if err := s.blobs.Delete(ctx, blobKey); err != nil {
				logging.WarnWithContext(logger, "blob delete failed", "blob_delete_failed",
					logging.String("blob_key", blobKey),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "remove the object manually or rely on bucket lifecycle rules"),
					logging.String(logging.FieldImpact, "orphaned source blob"),
				)
			}
		}
		if err := s.checkpoint(ctx, saga, content.PhaseBlobDeleted); err != nil {
			return s.markInconsistent(ctx, saga, err, res)
		}
	}

	if saga.Phase == content.PhaseBlobDeleted {
		cascade, err := s.store.DeleteCascade(ctx, saga.ContentID)
		if err != nil {
			return s.markInconsistent(ctx, saga, err, res)
		}
		res.Rows = cascade.Total()
		saga.Phase = content.PhasePrimaryDeleted
	}

	// The content is gone. A lost checkpoint only leaves the saga for
	// reconcile, whose cascade re-run deletes nothing.
	saga.Status = content.SagaCompleted
	saga.LastError = ""
	if err := s.store.UpdateSaga(ctx, saga); err != nil {
		logging.WarnWithContext(logger, "saga completion not recorded", "saga_checkpoint_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reconcile finalizes the saga on its next pass"),
			logging.String(logging.FieldImpact, "saga stays in progress until reconciled"),
		)
	}
	recordOutcome(OutcomeCompleted)
	logger.Info("content permanently deleted",
		logging.EventType("deletion_complete"),
		logging.Int64("rows", res.Rows),
	)
	res.Outcome = OutcomeCompleted
	return res
}

func (s *Service) markInconsistent(ctx context.Context, saga *content.DeletionSaga, cause error, res Result) Result {
	saga.Status = content.SagaInconsistent
	saga.LastError = cause.Error()
	logger := logging.WithContext(services.WithContentID(ctx, saga.ContentID), s.logger)
	if err := s.store.UpdateSaga(ctx, saga); err != nil {
		logger.Error("saga checkpoint failed", logging.Error(err))
	}
	recordOutcome(OutcomeInconsistent)
	logging.ErrorWithContext(logger, "primary delete failed after vectors were removed", "deletion_inconsistent",
		logging.Alert("inconsistent_state"),
		logging.ContentID(saga.ContentID),
		logging.String("saga_id", saga.ID),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "run reconcile with inconsistent sagas included"),
	)
	if err := s.notifier.Publish(ctx, notifications.EventConsistencyAlert, notifications.Payload{
		"contentId": saga.ContentID,
		"sagaId":    saga.ID,
		"error":     cause.Error(),
	}); err != nil {
		logger.Debug("consistency alert publish failed", logging.Error(err))
	}
	res.Outcome = OutcomeInconsistent
	res.Err = services.Wrap(services.ErrConsistency, stageName, "delete primary", "vectors removed but primary delete did not finish", cause)
	return res
}

func (s *Service) checkpoint(ctx context.Context, saga *content.DeletionSaga, phase content.SagaPhase) error {
	saga.Phase = phase
	if err := s.store.UpdateSaga(ctx, saga); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "checkpoint saga", fmt.Sprintf("record phase %s", phase), err)
	}
	return nil
}

// deleteVectors retries with exponential backoff. Zero matches is success.
func (s *Service) deleteVectors(ctx context.Context, contentID string) error {
	if s.vectors == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= s.opts.VectorDeleteAttempts; attempt++ {
		_, err := s.vectors.DeleteByMetadata(ctx, vectorstore.ContentFilter(contentID))
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == s.opts.VectorDeleteAttempts {
			break
		}
		delay := s.opts.RetryBaseDelay * time.Duration(1<<(attempt-1))
		logging.WarnWithContext(s.loggerFor(ctx, contentID), "vector delete retry", "vector_delete_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}
	return lastErr
}
