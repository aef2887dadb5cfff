/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * the reconciliation engine requires from storage. The engine deliberately
 * needs only a narrow surface: lookup by link field, an explicit fallback
 * lookup by email among unlinked contacts, create, a merge update of synced
 * fields, a status update, and the sync-run log.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For identifier handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/procura/reconciliation-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Contact lookup. FindContactByBeneficiaryID is the primary lookup on the
	// link field. FindUnlinkedContactByEmail is the explicit second strategy,
	// tried only after the primary lookup misses; it matches only contacts
	// whose link field is still unset, which also enforces the rule that a
	// link, once made, is never reassigned.
	FindContactByBeneficiaryID(ctx context.Context, category domain.EntityCategory, beneficiaryID string) (*domain.Contact, error)
	FindUnlinkedContactByEmail(ctx context.Context, category domain.EntityCategory, email string) (*domain.Contact, error)
	FindContactByID(ctx context.Context, contactID uuid.UUID) (*domain.Contact, error)

	// Contact writes. ApplySyncFields merges only the non-nil transformed
	// fields onto the stored row and always refreshes the sync status,
	// timestamp and raw snapshot while clearing any previous sync error.
	CreateContact(ctx context.Context, contact *domain.Contact) error
	ApplySyncFields(ctx context.Context, contactID uuid.UUID, fields domain.ContactFields) error
	UpdateContactSyncStatus(ctx context.Context, contactID uuid.UUID, status domain.SyncStatus, syncError string) error

	// Sync run log.
	CreateSyncRun(ctx context.Context, run *domain.SyncRun) error
	FinishSyncRun(ctx context.Context, runID uuid.UUID, status string, result *domain.SyncResult, runError string) error
	ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
}
