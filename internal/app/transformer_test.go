package app

import (
	"testing"
	"time"

	"github.com/procura/reconciliation-service/internal/domain"
	"github.com/procura/reconciliation-service/pkg/airwallex"
)

func ptrString(value string) *string {
	return &value
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		name        string
		beneficiary airwallex.Beneficiary
		wantFirst   string
		wantLast    string
		wantCompany *string
	}{
		{
			name: "company record uses company name",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_001",
				EntityType:    airwallex.EntityTypeCompany,
				CompanyName:   ptrString("Acme Ltd"),
			},
			wantFirst:   "",
			wantLast:    "Acme Ltd",
			wantCompany: ptrString("Acme Ltd"),
		},
		{
			name: "personal record uses given names",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_002",
				EntityType:    airwallex.EntityTypePersonal,
				FirstName:     ptrString("Maria"),
				LastName:      ptrString("Santos"),
			},
			wantFirst: "Maria",
			wantLast:  "Santos",
		},
		{
			name: "missing names fall back to account holder split",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_003",
				EntityType:    airwallex.EntityTypePersonal,
				BankDetails: &airwallex.BankDetails{
					AccountName: ptrString("Jane Doe"),
				},
			},
			wantFirst: "Jane",
			wantLast:  "Doe",
		},
		{
			name: "single token holder name becomes last name only",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_004",
				EntityType:    airwallex.EntityTypePersonal,
				BankDetails: &airwallex.BankDetails{
					AccountName: ptrString("Madonna"),
				},
			},
			wantFirst: "",
			wantLast:  "Madonna",
		},
		{
			name: "multi token holder name keeps remainder as last name",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_005",
				EntityType:    airwallex.EntityTypePersonal,
				BankDetails: &airwallex.BankDetails{
					AccountName: ptrString("Juan Carlos de la Cruz"),
				},
			},
			wantFirst: "Juan",
			wantLast:  "Carlos de la Cruz",
		},
		{
			name: "nothing derivable yields placeholder from external id suffix",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_2f77c2f5c857",
				EntityType:    airwallex.EntityTypePersonal,
			},
			wantFirst: "",
			wantLast:  "Beneficiary c2f5c857",
		},
		{
			name: "company without company name falls through to holder name",
			beneficiary: airwallex.Beneficiary{
				BeneficiaryID: "ben_006",
				EntityType:    airwallex.EntityTypeCompany,
				BankDetails: &airwallex.BankDetails{
					AccountName: ptrString("Globex Corp"),
				},
			},
			wantFirst: "Globex",
			wantLast:  "Corp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, company := deriveName(tt.beneficiary)
			if first != tt.wantFirst {
				t.Fatalf("expected first=%q, got %q", tt.wantFirst, first)
			}
			if last != tt.wantLast {
				t.Fatalf("expected last=%q, got %q", tt.wantLast, last)
			}
			if tt.wantCompany == nil && company != nil {
				t.Fatalf("expected no company, got %q", *company)
			}
			if tt.wantCompany != nil && (company == nil || *company != *tt.wantCompany) {
				t.Fatalf("expected company=%q, got %v", *tt.wantCompany, company)
			}
		})
	}
}

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{name: "known code maps to display name", code: "US", want: "United States"},
		{name: "lowercase code still maps", code: "gb", want: "United Kingdom"},
		{name: "unknown code passes through", code: "XX", want: "XX"},
		{name: "surrounding whitespace is trimmed", code: " SG ", want: "Singapore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeCountry(tt.code); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTransformBeneficiary_MapsAllSections(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	beneficiary := airwallex.Beneficiary{
		BeneficiaryID: "ben_full",
		EntityType:    airwallex.EntityTypePersonal,
		FirstName:     ptrString("Maria"),
		LastName:      ptrString("Santos"),
		Address: &airwallex.Address{
			StreetAddress: ptrString("12 Harbour Rd"),
			City:          ptrString("Singapore"),
			Postcode:      ptrString("018936"),
			CountryCode:   ptrString("SG"),
		},
		BankDetails: &airwallex.BankDetails{
			AccountName:     ptrString("Maria Santos"),
			AccountNumber:   ptrString("000123456789"),
			BankName:        ptrString("DBS Bank"),
			SwiftCode:       ptrString("DBSSSGSG"),
			AccountCurrency: ptrString("SGD"),
		},
		AdditionalInfo: &airwallex.AdditionalInfo{
			PersonalEmail:       ptrString("maria@example.com"),
			PersonalNationality: ptrString("PH"),
		},
		PaymentMethods: []string{"SWIFT", "LOCAL"},
	}

	fields, err := transformBeneficiary(beneficiary, now)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if fields.FirstName != "Maria" || fields.LastName != "Santos" {
		t.Fatalf("unexpected name: %q %q", fields.FirstName, fields.LastName)
	}
	if fields.Country == nil || *fields.Country != "Singapore" {
		t.Fatalf("expected normalized country, got %v", fields.Country)
	}
	if fields.BankAccountNumber == nil || *fields.BankAccountNumber != "000123456789" {
		t.Fatalf("expected bank account number mapped, got %v", fields.BankAccountNumber)
	}
	if fields.Email == nil || *fields.Email != "maria@example.com" {
		t.Fatalf("expected email mapped, got %v", fields.Email)
	}
	if fields.AirwallexBeneficiaryID != "ben_full" {
		t.Fatalf("expected link field stamped, got %q", fields.AirwallexBeneficiaryID)
	}
	if fields.SyncStatus != domain.SyncStatusSynced {
		t.Fatalf("expected SYNCED status, got %s", fields.SyncStatus)
	}
	if !fields.LastSyncedAt.Equal(now) {
		t.Fatalf("expected sync timestamp %v, got %v", now, fields.LastSyncedAt)
	}
	if len(fields.RawPayload) == 0 {
		t.Fatal("expected raw payload snapshot to be captured")
	}
	if len(fields.PaymentMethods) != 2 {
		t.Fatalf("expected 2 payment methods, got %d", len(fields.PaymentMethods))
	}
}

func TestTransformBeneficiary_CollapsesBlankOptionalFields(t *testing.T) {
	beneficiary := airwallex.Beneficiary{
		BeneficiaryID: "ben_blank",
		EntityType:    airwallex.EntityTypePersonal,
		FirstName:     ptrString("Maria"),
		LastName:      ptrString("Santos"),
		Address: &airwallex.Address{
			City:        ptrString("  "),
			CountryCode: ptrString(""),
		},
	}

	fields, err := transformBeneficiary(beneficiary, time.Now().UTC())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if fields.City != nil {
		t.Fatalf("expected blank city collapsed to nil, got %q", *fields.City)
	}
	if fields.Country != nil {
		t.Fatalf("expected empty country code collapsed to nil, got %q", *fields.Country)
	}
}

func TestTransformBeneficiary_RejectsUnusableRecords(t *testing.T) {
	tests := []struct {
		name        string
		beneficiary airwallex.Beneficiary
	}{
		{
			name:        "missing external identifier",
			beneficiary: airwallex.Beneficiary{EntityType: airwallex.EntityTypePersonal},
		},
		{
			name:        "missing entity type",
			beneficiary: airwallex.Beneficiary{BeneficiaryID: "ben_no_type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := transformBeneficiary(tt.beneficiary, time.Now().UTC()); err == nil {
				t.Fatal("expected an error for an unusable record")
			}
		})
	}
}

func TestPlaceholderEmail_IsDeterministic(t *testing.T) {
	first := placeholderEmail("ben_2F77C2F5C857")
	second := placeholderEmail("ben_2F77C2F5C857")
	if first != second {
		t.Fatalf("expected deterministic placeholder, got %q and %q", first, second)
	}
	if first != "beneficiary-c2f5c857@sync.procura.invalid" {
		t.Fatalf("unexpected placeholder %q", first)
	}
}
