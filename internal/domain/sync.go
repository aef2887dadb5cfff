/**
 * @description
 * This file defines the result and reporting structures produced by a
 * reconciliation run: field-level conflicts, per-record errors, synced-entity
 * summaries, the aggregated run result, and the persisted run log.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConflictResolutionExternalWins is the default policy marker attached to a
// detected conflict: the external value is written, the local one reported.
const ConflictResolutionExternalWins = "external_wins"

// SyncConflict records a mismatch between a locally stored field value and the
// freshly transformed external one. Conflicts are advisory output only; they
// never block the upsert.
type SyncConflict struct {
	ContactID     uuid.UUID `json:"contact_id"`
	ContactName   string    `json:"contact_name"`
	BeneficiaryID string    `json:"beneficiary_id"`
	Field         string    `json:"field"`
	LocalValue    string    `json:"local_value"`
	ExternalValue string    `json:"external_value"`
	Resolution    string    `json:"resolution"`
}

// SyncError is one per-record failure, tagged with the offending external
// identifier. Run-level failures live on SyncResult.ListingError instead.
type SyncError struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Message       string `json:"message"`
}

// SyncedEntity is the per-contact summary listed in a run result.
type SyncedEntity struct {
	ContactID   uuid.UUID  `json:"contact_id"`
	DisplayName string     `json:"display_name"`
	Status      SyncStatus `json:"status"`
}

// SyncResult aggregates the outcome of one reconciliation run. It is returned
// even on partial completion: records processed before a fatal pagination
// failure are never discarded.
type SyncResult struct {
	Category     EntityCategory `json:"category"`
	TotalFetched int            `json:"total_fetched"`
	NewCount     int            `json:"new_count"`
	UpdatedCount int            `json:"updated_count"`
	Conflicts    []SyncConflict `json:"conflicts"`
	Errors       []SyncError    `json:"errors"`
	Synced       []SyncedEntity `json:"synced_entities"`

	// ListingError is set when pagination aborted before the listing
	// completed. Errors holds per-record failures only.
	ListingError string `json:"listing_error,omitempty"`
}

// SyncRun is the persisted log record for one reconciliation run. It maps to
// the `sync_runs` table.
type SyncRun struct {
	ID            uuid.UUID      `json:"id"`
	Category      EntityCategory `json:"category"`
	Status        string         `json:"status"` // 'in_progress', 'completed', 'failed'
	TotalFetched  int            `json:"total_fetched"`
	NewCount      int            `json:"new_count"`
	UpdatedCount  int            `json:"updated_count"`
	ConflictCount int            `json:"conflict_count"`
	ErrorCount    int            `json:"error_count"`
	Error         *string        `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

const (
	SyncRunStatusInProgress = "in_progress"
	SyncRunStatusCompleted  = "completed"
	SyncRunStatusFailed     = "failed"
)
