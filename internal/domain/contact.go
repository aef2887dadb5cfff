/**
 * @description
 * This file defines the core domain models for the reconciliation-service.
 * A Contact is the internal entity a beneficiary or counterparty record maps
 * onto: contractors and suppliers we pay, clients who pay us, and generic
 * contacts. The engine treats all categories structurally identically.
 *
 * @notes
 * - Nullable columns are modelled as pointers so an absent external field
 *   never overwrites a stored value during a merge update.
 * - The raw payload snapshot is kept verbatim for audit/debugging and is not
 *   parsed downstream.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncStatus marks the outcome of the most recent reconciliation attempt for
// a contact.
type SyncStatus string

const (
	SyncStatusNone    SyncStatus = "NONE"
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusError   SyncStatus = "ERROR"
)

// EntityCategory identifies which business relationship a contact belongs to.
type EntityCategory string

const (
	CategoryContractor EntityCategory = "contractor"
	CategorySupplier   EntityCategory = "supplier"
	CategoryClient     EntityCategory = "client"
	CategoryContact    EntityCategory = "contact"
)

// ValidCategory reports whether the given string names a known entity category.
func ValidCategory(raw string) (EntityCategory, bool) {
	switch EntityCategory(raw) {
	case CategoryContractor, CategorySupplier, CategoryClient, CategoryContact:
		return EntityCategory(raw), true
	}
	return "", false
}

// Contact represents one internal entity record. It maps directly to the
// `contacts` table in the database.
type Contact struct {
	ID       uuid.UUID      `json:"id"`
	Category EntityCategory `json:"category"`

	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	CompanyName *string `json:"company_name,omitempty"`

	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`

	AddressLine *string `json:"address_line,omitempty"`
	City        *string `json:"city,omitempty"`
	State       *string `json:"state,omitempty"`
	PostalCode  *string `json:"postal_code,omitempty"`
	Country     *string `json:"country,omitempty"`

	BankAccountName   *string `json:"bank_account_name,omitempty"`
	BankAccountNumber *string `json:"bank_account_number,omitempty"`
	BankName          *string `json:"bank_name,omitempty"`
	SwiftCode         *string `json:"swift_code,omitempty"`
	IBAN              *string `json:"iban,omitempty"`
	Currency          *string `json:"currency,omitempty"`
	ClearingSystem    *string `json:"clearing_system,omitempty"`

	LegalRepFirstName          *string `json:"legal_rep_first_name,omitempty"`
	LegalRepLastName           *string `json:"legal_rep_last_name,omitempty"`
	LegalRepEmail              *string `json:"legal_rep_email,omitempty"`
	BusinessRegistrationNumber *string `json:"business_registration_number,omitempty"`
	BusinessRegistrationType   *string `json:"business_registration_type,omitempty"`

	PersonalNationality *string `json:"personal_nationality,omitempty"`
	PersonalOccupation  *string `json:"personal_occupation,omitempty"`
	PersonalIDNumber    *string `json:"personal_id_number,omitempty"`

	PaymentMethods []string `json:"payment_methods,omitempty"`

	// Link field: at most one external record per contact. Once set it is
	// never reassigned by the engine.
	AirwallexBeneficiaryID *string `json:"airwallex_beneficiary_id,omitempty"`

	SyncStatus    SyncStatus      `json:"sync_status"`
	LastSyncedAt  *time.Time      `json:"last_synced_at,omitempty"`
	LastSyncError *string         `json:"last_sync_error,omitempty"`
	RawPayload    json.RawMessage `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName renders the name shown in sync reports: company name when
// present, otherwise "First Last".
func (c *Contact) DisplayName() string {
	if c.CompanyName != nil && *c.CompanyName != "" {
		return *c.CompanyName
	}
	if c.FirstName == "" {
		return c.LastName
	}
	return c.FirstName + " " + c.LastName
}

// ContactFields is the partial contact produced by the field transformer.
// Pointer fields follow merge semantics: nil means "leave the stored value
// untouched". FirstName/LastName are always populated (placeholder policy).
type ContactFields struct {
	FirstName   string
	LastName    string
	CompanyName *string

	Email *string
	Phone *string

	AddressLine *string
	City        *string
	State       *string
	PostalCode  *string
	Country     *string

	BankAccountName   *string
	BankAccountNumber *string
	BankName          *string
	SwiftCode         *string
	IBAN              *string
	Currency          *string
	ClearingSystem    *string

	LegalRepFirstName          *string
	LegalRepLastName           *string
	LegalRepEmail              *string
	BusinessRegistrationNumber *string
	BusinessRegistrationType   *string

	PersonalNationality *string
	PersonalOccupation  *string
	PersonalIDNumber    *string

	PaymentMethods []string

	AirwallexBeneficiaryID string

	SyncStatus   SyncStatus
	LastSyncedAt time.Time
	RawPayload   json.RawMessage
}
