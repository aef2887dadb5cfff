/**
 * @description
 * This file contains the sync orchestrator: the per-record lifecycle
 * (lookup, create or update, status update), failure isolation, and run-level
 * aggregation. One orchestrator run drives one entity category; beneficiary
 * categories and the counterparty (payer) relationship use the same engine
 * over different listing endpoints.
 *
 * Per-record state machine, records independent of one another:
 *
 *   LOOKUP -> (not found) -> CREATE -> SYNCED
 *   LOOKUP -> (found)     -> DETECT_CONFLICTS -> UPDATE -> SYNCED
 *   any step -> failure   -> ERROR recorded, loop continues
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/procura/reconciliation-service/internal/domain"
	"github.com/procura/reconciliation-service/internal/store"
	"github.com/procura/reconciliation-service/pkg/airwallex"
)

// RunSync executes one full reconciliation run for a category. The returned
// result is populated even on partial completion: records processed before a
// mid-run pagination failure are committed and reported, never discarded.
// Only an authentication failure or a first-page fetch failure aborts with no
// records processed.
func (s *Service) RunSync(ctx context.Context, category domain.EntityCategory) (*domain.SyncResult, error) {
	// A release is registered only for a lock this run actually acquired.
	// After an errored acquire the key may belong to a concurrent run.
	acquired, lockErr := s.guard.AcquireRunLock(ctx, string(category), s.runLockTTL)
	switch {
	case lockErr != nil:
		log.Printf("level=warn component=service flow=sync msg=\"run lock unavailable; proceeding unguarded\" category=%s err=%v", category, lockErr)
	case !acquired:
		return nil, ErrSyncAlreadyRunning
	default:
		defer func() {
			if err := s.guard.ReleaseRunLock(context.WithoutCancel(ctx), string(category)); err != nil {
				log.Printf("level=warn component=service flow=sync msg=\"failed to release run lock; ttl will expire it\" category=%s err=%v", category, err)
			}
		}()
	}

	run := &domain.SyncRun{
		ID:        uuid.New(),
		Category:  category,
		Status:    domain.SyncRunStatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSyncRun(ctx, run); err != nil {
		log.Printf("level=warn component=service flow=sync msg=\"failed to persist run log; continuing without it\" category=%s err=%v", category, err)
		run = nil
	}

	log.Printf("level=info component=service flow=sync msg=\"run started\" category=%s", category)

	items, fetchErr := s.fetchExternal(ctx, category)
	if fetchErr != nil && len(items) == 0 {
		s.finishRun(ctx, run, domain.SyncRunStatusFailed, nil, fetchErr.Error())
		s.publishRunEvent(ctx, category, domain.SyncRunStatusFailed, nil)
		return nil, fetchErr
	}

	result := &domain.SyncResult{
		Category:     category,
		TotalFetched: len(items),
		Conflicts:    []domain.SyncConflict{},
		Errors:       []domain.SyncError{},
		Synced:       []domain.SyncedEntity{},
	}
	if fetchErr != nil {
		// Partial listing: process what arrived and surface the abort on the run.
		log.Printf("level=warn component=service flow=sync msg=\"listing aborted mid-run; processing accumulated records\" category=%s fetched=%d err=%v", category, len(items), fetchErr)
		result.ListingError = fmt.Sprintf("listing aborted early: %v", fetchErr)
	}

	for _, item := range items {
		s.syncRecord(ctx, category, item, result)
	}

	status := domain.SyncRunStatusCompleted
	runError := ""
	if fetchErr != nil {
		status = domain.SyncRunStatusFailed
		runError = fetchErr.Error()
	}
	s.finishRun(ctx, run, status, result, runError)
	s.publishRunEvent(ctx, category, status, result)

	log.Printf("level=info component=service flow=sync msg=\"run finished\" category=%s status=%s fetched=%d new=%d updated=%d conflicts=%d errors=%d",
		category, status, result.TotalFetched, result.NewCount, result.UpdatedCount, len(result.Conflicts), len(result.Errors))

	return result, nil
}

// fetchExternal selects the listing endpoint for a category. The counterparty
// relationship (clients who pay us) is a separate listing with identical
// record shape and pagination semantics.
func (s *Service) fetchExternal(ctx context.Context, category domain.EntityCategory) ([]airwallex.Beneficiary, error) {
	if category == domain.CategoryClient {
		return s.airwallexClient.ListAllCounterparties(ctx)
	}
	return s.airwallexClient.ListAllBeneficiaries(ctx)
}

// syncRecord drives the state machine for one external record. Any failure is
// recorded against the record's external identifier and processing continues
// with the next record.
func (s *Service) syncRecord(ctx context.Context, category domain.EntityCategory, b airwallex.Beneficiary, result *domain.SyncResult) {
	externalID := strings.TrimSpace(b.BeneficiaryID)

	fields, err := transformBeneficiary(b, time.Now().UTC())
	if err != nil {
		s.recordFailure(result, externalID, fmt.Errorf("transform failed: %w", err))
		return
	}

	existing, err := s.lookupContact(ctx, category, fields)
	if err != nil {
		s.recordFailure(result, externalID, err)
		return
	}

	if existing == nil {
		contact := newContactFromFields(category, fields)
		if err := s.repo.CreateContact(ctx, contact); err != nil {
			s.recordFailure(result, externalID, fmt.Errorf("create failed: %w", err))
			return
		}
		result.NewCount++
		result.Synced = append(result.Synced, domain.SyncedEntity{
			ContactID:   contact.ID,
			DisplayName: contact.DisplayName(),
			Status:      domain.SyncStatusSynced,
		})
		return
	}

	result.Conflicts = append(result.Conflicts, detectConflicts(existing, fields)...)

	if err := s.repo.ApplySyncFields(ctx, existing.ID, fields); err != nil {
		s.recordFailure(result, externalID, fmt.Errorf("update failed: %w", err))
		if statusErr := s.repo.UpdateContactSyncStatus(ctx, existing.ID, domain.SyncStatusError, err.Error()); statusErr != nil {
			log.Printf("level=warn component=service flow=sync msg=\"failed to persist error status\" contact_id=%s err=%v", existing.ID, statusErr)
		}
		return
	}

	result.UpdatedCount++
	result.Synced = append(result.Synced, domain.SyncedEntity{
		ContactID:   existing.ID,
		DisplayName: displayNameFromFields(fields),
		Status:      domain.SyncStatusSynced,
	})
}

// lookupContact resolves the internal contact for a transformed record.
// Primary strategy: the link field. Second, explicitly separate strategy: an
// email match among unlinked contacts of the category, used only to attach a
// contact created through another path to its first-ever external
// counterpart. The two are never folded together because an ambiguous email
// match must not be able to steal an existing link.
func (s *Service) lookupContact(ctx context.Context, category domain.EntityCategory, fields domain.ContactFields) (*domain.Contact, error) {
	existing, err := s.repo.FindContactByBeneficiaryID(ctx, category, fields.AirwallexBeneficiaryID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrContactNotFound) {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}

	if fields.Email == nil {
		return nil, nil
	}

	byEmail, err := s.repo.FindUnlinkedContactByEmail(ctx, category, *fields.Email)
	if err != nil {
		if errors.Is(err, store.ErrContactNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("email fallback lookup failed: %w", err)
	}
	return byEmail, nil
}

func (s *Service) recordFailure(result *domain.SyncResult, externalID string, err error) {
	log.Printf("level=warn component=service flow=sync msg=\"record failed\" beneficiary_id=%s err=%v", externalID, err)
	result.Errors = append(result.Errors, domain.SyncError{
		BeneficiaryID: externalID,
		Message:       err.Error(),
	})
}

func (s *Service) finishRun(ctx context.Context, run *domain.SyncRun, status string, result *domain.SyncResult, runError string) {
	if run == nil {
		return
	}
	if err := s.repo.FinishSyncRun(context.WithoutCancel(ctx), run.ID, status, result, runError); err != nil {
		log.Printf("level=warn component=service flow=sync msg=\"failed to finish run log\" run_id=%s err=%v", run.ID, err)
	}
}

// newContactFromFields builds a contact for a first-ever external record.
// Required fields are always populated: the name via the transformer's
// placeholder policy, the contact email via a placeholder derived from the
// external id when no real email is present.
func newContactFromFields(category domain.EntityCategory, fields domain.ContactFields) *domain.Contact {
	beneficiaryID := fields.AirwallexBeneficiaryID
	lastSynced := fields.LastSyncedAt

	contact := &domain.Contact{
		ID:       uuid.New(),
		Category: category,

		FirstName:   fields.FirstName,
		LastName:    fields.LastName,
		CompanyName: fields.CompanyName,

		Email: fields.Email,
		Phone: fields.Phone,

		AddressLine: fields.AddressLine,
		City:        fields.City,
		State:       fields.State,
		PostalCode:  fields.PostalCode,
		Country:     fields.Country,

		BankAccountName:   fields.BankAccountName,
		BankAccountNumber: fields.BankAccountNumber,
		BankName:          fields.BankName,
		SwiftCode:         fields.SwiftCode,
		IBAN:              fields.IBAN,
		Currency:          fields.Currency,
		ClearingSystem:    fields.ClearingSystem,

		LegalRepFirstName:          fields.LegalRepFirstName,
		LegalRepLastName:           fields.LegalRepLastName,
		LegalRepEmail:              fields.LegalRepEmail,
		BusinessRegistrationNumber: fields.BusinessRegistrationNumber,
		BusinessRegistrationType:   fields.BusinessRegistrationType,

		PersonalNationality: fields.PersonalNationality,
		PersonalOccupation:  fields.PersonalOccupation,
		PersonalIDNumber:    fields.PersonalIDNumber,

		PaymentMethods: fields.PaymentMethods,

		AirwallexBeneficiaryID: &beneficiaryID,
		SyncStatus:             fields.SyncStatus,
		LastSyncedAt:           &lastSynced,
		RawPayload:             fields.RawPayload,
	}

	if contact.Email == nil {
		contact.Email = strPtr(placeholderEmail(beneficiaryID))
	}

	return contact
}

func displayNameFromFields(fields domain.ContactFields) string {
	if fields.CompanyName != nil && *fields.CompanyName != "" {
		return *fields.CompanyName
	}
	if fields.FirstName == "" {
		return fields.LastName
	}
	return fields.FirstName + " " + fields.LastName
}
