/**
 * @description
 * This file contains the core service type for the reconciliation-service.
 * The `Service` struct wires the storage repository, the Airwallex API client,
 * the event producer and the optional Redis guard together, and exposes the
 * sync entry points used by the API layer.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/airwallex, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/procura/reconciliation-service/internal/domain"
	"github.com/procura/reconciliation-service/internal/store"
	"github.com/procura/reconciliation-service/pkg/airwallex"
	"github.com/procura/reconciliation-service/pkg/rabbitmq"
)

const defaultRunLockTTL = 15 * time.Minute

var (
	// ErrSyncAlreadyRunning is returned when the run lock for a category is held.
	ErrSyncAlreadyRunning = errors.New("a sync run for this category is already in progress")
	// ErrContactNotLinked is returned when a resync is requested for a contact
	// without an external beneficiary link.
	ErrContactNotLinked = errors.New("contact is not linked to an external beneficiary")
	// ErrBeneficiaryGone is returned when the linked beneficiary no longer
	// exists on the payments platform.
	ErrBeneficiaryGone = errors.New("beneficiary no longer exists on the payments platform")
	// ErrResyncRateLimited is returned when per-contact resync requests exceed
	// the configured window limit.
	ErrResyncRateLimited = errors.New("resync rate limit exceeded")
)

// SyncGuard coordinates run exclusivity and resync rate limiting. The
// Redis-backed implementation is RedisSyncGuard; a nil *RedisSyncGuard
// satisfies it in degraded, unguarded mode.
type SyncGuard interface {
	AcquireRunLock(ctx context.Context, category string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, category string) error
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the reconciliation engine's business logic.
type Service struct {
	repo            store.Repository
	airwallexClient *airwallex.Client
	eventProducer   rabbitmq.Publisher

	guard                SyncGuard
	runLockTTL           time.Duration
	resyncLimitPerMinute int
}

// NewService creates a new reconciliation service instance.
func NewService(repo store.Repository, client *airwallex.Client, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:            repo,
		airwallexClient: client,
		eventProducer:   producer,
		guard:           (*RedisSyncGuard)(nil),
		runLockTTL:      defaultRunLockTTL,
	}
}

// SetSyncGuard attaches the run lock and resync limiter. Without a configured
// guard, runs are unguarded and resyncs unlimited (degraded mode).
func (s *Service) SetSyncGuard(guard SyncGuard) {
	if guard != nil {
		s.guard = guard
	}
}

// ConfigureRunLockTTL overrides how long a run lock survives a crashed run.
func (s *Service) ConfigureRunLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.runLockTTL = ttl
	}
}

// ConfigureResyncRateLimit sets the per-contact resync limit per minute.
// Zero disables limiting.
func (s *Service) ConfigureResyncRateLimit(perMinute int) {
	if perMinute >= 0 {
		s.resyncLimitPerMinute = perMinute
	}
}

// ListSyncRuns returns the most recent persisted run log records.
func (s *Service) ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	return s.repo.ListSyncRuns(ctx, limit)
}

// ResyncContact refetches the single linked beneficiary for one contact and
// reapplies the transform and merge update. A vanished external record marks
// the contact ERROR rather than deleting anything.
func (s *Service) ResyncContact(ctx context.Context, contactID uuid.UUID) (*domain.Contact, error) {
	contact, err := s.repo.FindContactByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact.AirwallexBeneficiaryID == nil || strings.TrimSpace(*contact.AirwallexBeneficiaryID) == "" {
		return nil, ErrContactNotLinked
	}

	if s.resyncLimitPerMinute > 0 {
		count, _, limitErr := s.guard.ConsumeRateLimit(ctx, "resync", contactID.String(), s.resyncLimitPerMinute, time.Minute)
		if limitErr != nil {
			log.Printf("level=warn component=service flow=resync msg=\"rate limiter unavailable; allowing request\" contact_id=%s err=%v", contactID, limitErr)
		} else if count > s.resyncLimitPerMinute {
			return nil, ErrResyncRateLimited
		}
	}

	beneficiary, err := s.airwallexClient.GetBeneficiary(ctx, *contact.AirwallexBeneficiaryID)
	if err != nil {
		if statusErr := s.repo.UpdateContactSyncStatus(ctx, contact.ID, domain.SyncStatusError, err.Error()); statusErr != nil {
			log.Printf("level=warn component=service flow=resync msg=\"failed to persist error status\" contact_id=%s err=%v", contact.ID, statusErr)
		}
		return nil, err
	}
	if beneficiary == nil {
		if statusErr := s.repo.UpdateContactSyncStatus(ctx, contact.ID, domain.SyncStatusError, "beneficiary not found on airwallex"); statusErr != nil {
			log.Printf("level=warn component=service flow=resync msg=\"failed to persist error status\" contact_id=%s err=%v", contact.ID, statusErr)
		}
		return nil, ErrBeneficiaryGone
	}

	fields, err := transformBeneficiary(*beneficiary, time.Now().UTC())
	if err != nil {
		if statusErr := s.repo.UpdateContactSyncStatus(ctx, contact.ID, domain.SyncStatusError, err.Error()); statusErr != nil {
			log.Printf("level=warn component=service flow=resync msg=\"failed to persist error status\" contact_id=%s err=%v", contact.ID, statusErr)
		}
		return nil, err
	}

	if err := s.repo.ApplySyncFields(ctx, contact.ID, fields); err != nil {
		return nil, err
	}
	return s.repo.FindContactByID(ctx, contactID)
}

// publishRunEvent emits the run-completed event. Publishing problems never
// fail a run that already committed its records.
func (s *Service) publishRunEvent(ctx context.Context, category domain.EntityCategory, status string, result *domain.SyncResult) {
	if s.eventProducer == nil {
		return
	}

	event := rabbitmq.SyncCompletedEvent{
		Category:  string(category),
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if result != nil {
		event.TotalFetched = result.TotalFetched
		event.NewCount = result.NewCount
		event.UpdatedCount = result.UpdatedCount
		event.ConflictCount = len(result.Conflicts)
		event.ErrorCount = len(result.Errors)
	}

	if err := s.eventProducer.PublishSyncCompletedEvent(ctx, event); err != nil {
		log.Printf("level=warn component=service flow=sync msg=\"failed to publish run event\" category=%s err=%v", category, err)
	}
}
