package app

import (
	"testing"

	"github.com/google/uuid"
	"github.com/procura/reconciliation-service/internal/domain"
)

func TestDetectConflicts(t *testing.T) {
	contactID := uuid.New()

	tests := []struct {
		name       string
		existing   domain.Contact
		fields     domain.ContactFields
		wantFields []string
	}{
		{
			name: "differing email and bank account number",
			existing: domain.Contact{
				ID:                contactID,
				FirstName:         "Maria",
				LastName:          "Santos",
				Email:             ptrString("maria@old.example.com"),
				BankAccountNumber: ptrString("111222333"),
			},
			fields: domain.ContactFields{
				AirwallexBeneficiaryID: "ben_001",
				Email:                  ptrString("maria@new.example.com"),
				BankAccountNumber:      ptrString("999888777"),
			},
			wantFields: []string{"email", "bank_account_number"},
		},
		{
			name: "empty local side is never a conflict",
			existing: domain.Contact{
				ID: contactID,
			},
			fields: domain.ContactFields{
				AirwallexBeneficiaryID: "ben_002",
				Email:                  ptrString("maria@new.example.com"),
				Phone:                  ptrString("+6591234567"),
			},
			wantFields: nil,
		},
		{
			name: "empty external side is never a conflict",
			existing: domain.Contact{
				ID:          contactID,
				Email:       ptrString("maria@old.example.com"),
				Phone:       ptrString("+6591234567"),
				AddressLine: ptrString("12 Harbour Rd"),
			},
			fields: domain.ContactFields{
				AirwallexBeneficiaryID: "ben_003",
			},
			wantFields: nil,
		},
		{
			name: "equal values are never a conflict",
			existing: domain.Contact{
				ID:    contactID,
				Email: ptrString("maria@example.com"),
			},
			fields: domain.ContactFields{
				AirwallexBeneficiaryID: "ben_004",
				Email:                  ptrString("maria@example.com"),
			},
			wantFields: nil,
		},
		{
			name: "values equal after trimming are never a conflict",
			existing: domain.Contact{
				ID:          contactID,
				AddressLine: ptrString("12 Harbour Rd "),
			},
			fields: domain.ContactFields{
				AirwallexBeneficiaryID: "ben_005",
				AddressLine:            ptrString(" 12 Harbour Rd"),
			},
			wantFields: nil,
		},
		{
			name: "differing address line",
			existing: domain.Contact{
				ID:          contactID,
				AddressLine: ptrString("12 Harbour Rd"),
			},
			fields: domain.ContactFields{
				AirwallexBeneficiaryID: "ben_006",
				AddressLine:            ptrString("88 Marina Blvd"),
			},
			wantFields: []string{"address_line"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conflicts := detectConflicts(&tt.existing, tt.fields)
			if len(conflicts) != len(tt.wantFields) {
				t.Fatalf("expected %d conflicts, got %d: %+v", len(tt.wantFields), len(conflicts), conflicts)
			}
			for i, want := range tt.wantFields {
				got := conflicts[i]
				if got.Field != want {
					t.Fatalf("expected conflict %d on %q, got %q", i, want, got.Field)
				}
				if got.Resolution != domain.ConflictResolutionExternalWins {
					t.Fatalf("expected external-wins resolution, got %q", got.Resolution)
				}
				if got.ContactID != tt.existing.ID {
					t.Fatalf("expected conflict bound to contact %s, got %s", tt.existing.ID, got.ContactID)
				}
				if got.BeneficiaryID != tt.fields.AirwallexBeneficiaryID {
					t.Fatalf("expected conflict tagged with external id %q, got %q", tt.fields.AirwallexBeneficiaryID, got.BeneficiaryID)
				}
			}
		})
	}
}

func TestDetectConflicts_ReportsLocalAndExternalValues(t *testing.T) {
	existing := domain.Contact{
		ID:        uuid.New(),
		FirstName: "Maria",
		LastName:  "Santos",
		Email:     ptrString("maria@old.example.com"),
	}
	fields := domain.ContactFields{
		AirwallexBeneficiaryID: "ben_007",
		Email:                  ptrString("maria@new.example.com"),
	}

	conflicts := detectConflicts(&existing, fields)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].LocalValue != "maria@old.example.com" {
		t.Fatalf("expected local value preserved in report, got %q", conflicts[0].LocalValue)
	}
	if conflicts[0].ExternalValue != "maria@new.example.com" {
		t.Fatalf("expected external value in report, got %q", conflicts[0].ExternalValue)
	}
	if conflicts[0].ContactName != "Maria Santos" {
		t.Fatalf("expected display name in report, got %q", conflicts[0].ContactName)
	}
}
