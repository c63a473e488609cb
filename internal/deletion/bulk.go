package deletion

import (
	"context"

	"golang.org/x/sync/errgroup"

	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
	"studyforge/internal/services"
)

// BulkFailure is one item a bulk delete could not remove.
type BulkFailure struct {
	ContentID string
	Err       error
}

// BulkResult partitions the ids of a bulk delete.
type BulkResult struct {
	Succeeded    []string
	Failed       []BulkFailure
	Inconsistent []string
}

// BulkDelete permanently deletes each id in its own saga. Items run
// concurrently and never share a transaction.
func (s *Service) BulkDelete(ctx context.Context, ids []string, requester string) BulkResult {
	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(s.opts.BulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.Delete(ctx, id, requester)
			res.ContentID = id
			res.Err = err
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var out BulkResult
	for _, res := range results {
		switch {
		case res.Err == nil:
			out.Succeeded = append(out.Succeeded, res.ContentID)
		case res.Outcome == OutcomeInconsistent:
			out.Inconsistent = append(out.Inconsistent, res.ContentID)
		default:
			out.Failed = append(out.Failed, BulkFailure{ContentID: res.ContentID, Err: res.Err})
		}
	}
	if len(ids) > 0 {
		if err := s.notifier.Publish(ctx, notifications.EventBulkDeleted, notifications.Payload{
			"succeeded":    len(out.Succeeded),
			"failed":       len(out.Failed),
			"inconsistent": len(out.Inconsistent),
		}); err != nil {
			s.logger.Debug("bulk delete notification failed", logging.Error(err))
		}
	}
	return out
}

// ReconcileOptions selects which sagas Reconcile advances.
type ReconcileOptions struct {
	// IncludeInconsistent re-runs the primary delete of inconsistent sagas.
	IncludeInconsistent bool
}

// Reconcile forward-completes in-progress sagas that stalled past the
// threshold, and optionally inconsistent ones.
func (s *Service) Reconcile(ctx context.Context, opts ReconcileOptions) ([]Result, error) {
	stalled, err := s.store.ListSagas(ctx, content.SagaFilter{
		Statuses:      []content.SagaStatus{content.SagaInProgress},
		UpdatedBefore: s.now().Add(-s.opts.StallThreshold),
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, "reconcile", "list stalled sagas", err)
	}
	if opts.IncludeInconsistent {
		inconsistent, err := s.store.ListSagas(ctx, content.SagaFilter{
			Statuses: []content.SagaStatus{content.SagaInconsistent},
		})
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, stageName, "reconcile", "list inconsistent sagas", err)
		}
		stalled = append(stalled, inconsistent...)
	}

	results := make([]Result, 0, len(stalled))
	for _, saga := range stalled {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var blobKey string
		item, err := s.store.GetByID(ctx, saga.ContentID)
		if err != nil {
			results = append(results, Result{ContentID: saga.ContentID, SagaID: saga.ID, Err: err})
			continue
		}
		if item != nil {
			blobKey = item.BlobKey
		}
		saga.Status = content.SagaInProgress
		saga.Attempts++
		res := s.advance(ctx, saga, blobKey)
		s.loggerFor(ctx, saga.ContentID).Info("saga reconciled",
			logging.EventType("saga_reconciled"),
			logging.String("saga_id", saga.ID),
			logging.String("outcome", string(res.Outcome)),
		)
		results = append(results, res)
	}
	return results, nil
}
