package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"studyforge/internal/blobstore"
	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/logging"
	"studyforge/internal/notifications"
	"studyforge/internal/services"
	"studyforge/internal/vectorstore"
)

const stageName = "deletion"

// Options tunes retry and retention behaviour.
type Options struct {
	VectorDeleteAttempts int
	RetryBaseDelay       time.Duration
	RecoveryWindow       time.Duration
	BulkConcurrency      int
	StallThreshold       time.Duration
}

// OptionsFromConfig maps configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		VectorDeleteAttempts: cfg.VectorStore.DeleteAttempts,
		RetryBaseDelay:       time.Duration(cfg.Generation.RetryBaseDelayMillis) * time.Millisecond,
		RecoveryWindow:       cfg.RecoveryWindow(),
		BulkConcurrency:      cfg.Deletion.BulkConcurrency,
		StallThreshold:       cfg.StallThreshold(),
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithSleeper replaces the backoff sleep.
func WithSleeper(fn func(context.Context, time.Duration) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service coordinates deletes across stores.
type Service struct {
	store    *content.Store
	vectors  vectorstore.Store
	blobs    blobstore.Store
	notifier notifications.Service
	opts     Options
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

// NewService builds a deletion service. blobs may be nil when sources are
// not retained.
func NewService(store *content.Store, vectors vectorstore.Store, blobs blobstore.Store, notifier notifications.Service, opts Options, logger *slog.Logger, options ...Option) *Service {
	if opts.VectorDeleteAttempts <= 0 {
		opts.VectorDeleteAttempts = 1
	}
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 1
	}
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	s := &Service{
		store:    store,
		vectors:  vectors,
		blobs:    blobs,
		notifier: notifier,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, stageName),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SoftDelete hides an item from the pipeline and listings. Deleting an item
// that is already soft-deleted is a no-op.
func (s *Service) SoftDelete(ctx context.Context, contentID, requester string) error {
	item, err := s.load(ctx, contentID, requester, "soft delete")
	if err != nil {
		return err
	}
	if item.Deleted {
		return nil
	}
	now := s.now().UTC()
	if err := s.store.MarkDeleted(ctx, contentID, now); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "soft delete", "", err)
	}
	if s.blobs != nil && item.BlobKey != "" {
		tags := map[string]string{
			blobstore.TagDeleted:   "true",
			blobstore.TagDeletedAt: now.Format(time.RFC3339),
		}
		if err := s.blobs.Tag(ctx, item.BlobKey, tags); err != nil {
			logging.WarnWithContext(s.loggerFor(ctx, contentID), "blob soft-delete tag failed", "blob_tag_failed",
				logging.String("blob_key", item.BlobKey),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the sweep still removes the blob when the window elapses"),
				logging.String(logging.FieldImpact, "blob lifecycle rules will not see the deletion"),
			)
		}
	}
	recordOutcome(OutcomeSoftDeleted)
	s.loggerFor(ctx, contentID).Info("content soft-deleted", logging.EventType("soft_deleted"))
	return nil
}

// Restore reverses a soft delete inside the recovery window.
func (s *Service) Restore(ctx context.Context, contentID string) error {
	item, err := s.load(ctx, contentID, "", "restore")
	if err != nil {
		return err
	}
	if !item.Deleted {
		return services.Wrap(services.ErrValidation, stageName, "restore", fmt.Sprintf("content %s is not deleted", contentID), nil)
	}
	if item.DeletedAt != nil && s.now().Sub(*item.DeletedAt) > s.opts.RecoveryWindow {
		return services.Wrap(services.ErrValidation, stageName, "restore",
			fmt.Sprintf("recovery window of %s has elapsed", s.opts.RecoveryWindow), nil)
	}
	if err := s.store.ClearDeleted(ctx, contentID); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "restore", "", err)
	}
	if s.blobs != nil && item.BlobKey != "" {
		if err := s.blobs.Untag(ctx, item.BlobKey, blobstore.TagDeleted, blobstore.TagDeletedAt); err != nil {
			logging.WarnWithContext(s.loggerFor(ctx, contentID), "blob restore untag failed", "blob_untag_failed",
				logging.String("blob_key", item.BlobKey),
				logging.Error(err),
			)
		}
	}
	recordOutcome(OutcomeRestored)
	s.loggerFor(ctx, contentID).Info("content restored", logging.EventType("restored"))
	return nil
}

// Sweep permanently deletes soft-deleted items older than the recovery window.
func (s *Service) Sweep(ctx context.Context, now time.Time) (BulkResult, error) {
	expired, err := s.store.ListSoftDeletedBefore(ctx, now.Add(-s.opts.RecoveryWindow))
	if err != nil {
		return BulkResult{}, services.Wrap(services.ErrTransient, stageName, "sweep", "", err)
	}
	if len(expired) == 0 {
		return BulkResult{}, nil
	}
	ids := make([]string, 0, len(expired))
	for _, item := range expired {
		ids = append(ids, item.ID)
	}
	result := s.BulkDelete(ctx, ids, "")
	s.logger.Info("soft-delete sweep finished",
		logging.EventType("sweep_complete"),
		logging.Int("succeeded", len(result.Succeeded)),
		logging.Int("failed", len(result.Failed)),
		logging.Int("inconsistent", len(result.Inconsistent)),
	)
	return result, nil
}

// load returns a live or soft-deleted item, enforcing ownership when a
// requester is given.
func (s *Service) load(ctx context.Context, contentID, requester, op string) (*content.Content, error) {
	item, err := s.store.GetByID(ctx, contentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stageName, op, "", err)
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, stageName, op, fmt.Sprintf("content %s not found", contentID), nil)
	}
	if requester != "" && item.Owner != requester {
		return nil, services.Wrap(services.ErrValidation, stageName, op,
			fmt.Sprintf("content %s is not owned by %s", contentID, requester), nil)
	}
	return item, nil
}

func (s *Service) loggerFor(ctx context.Context, contentID string) *slog.Logger {
	return logging.WithContext(services.WithContentID(ctx, contentID), s.logger)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
