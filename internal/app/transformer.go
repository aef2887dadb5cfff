/**
 * @description
 * This file contains the field transformer: a pure mapping from one external
 * Airwallex beneficiary record to the partial internal contact it represents.
 * Name derivation is entity-type dependent and always produces a non-empty
 * last name, falling back to a deterministic placeholder carrying a suffix of
 * the external identifier.
 *
 * @dependencies
 * - encoding/json, fmt, strings, time: Standard Go libraries.
 * - pkg/airwallex, internal/domain: External payload and internal models.
 */

package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/procura/reconciliation-service/internal/domain"
	"github.com/procura/reconciliation-service/pkg/airwallex"
)

// countryNames maps the two-letter codes the platform emits to display names.
// Unmapped codes pass through unchanged; an unknown code is never an error.
var countryNames = map[string]string{
	"AE": "United Arab Emirates",
	"AR": "Argentina",
	"AT": "Austria",
	"AU": "Australia",
	"BE": "Belgium",
	"BR": "Brazil",
	"CA": "Canada",
	"CH": "Switzerland",
	"CL": "Chile",
	"CN": "China",
	"CO": "Colombia",
	"CZ": "Czechia",
	"DE": "Germany",
	"DK": "Denmark",
	"EG": "Egypt",
	"ES": "Spain",
	"FI": "Finland",
	"FR": "France",
	"GB": "United Kingdom",
	"HK": "Hong Kong SAR",
	"ID": "Indonesia",
	"IE": "Ireland",
	"IL": "Israel",
	"IN": "India",
	"IT": "Italy",
	"JP": "Japan",
	"KE": "Kenya",
	"KR": "South Korea",
	"MX": "Mexico",
	"MY": "Malaysia",
	"NG": "Nigeria",
	"NL": "Netherlands",
	"NO": "Norway",
	"NZ": "New Zealand",
	"PH": "Philippines",
	"PL": "Poland",
	"PT": "Portugal",
	"SA": "Saudi Arabia",
	"SE": "Sweden",
	"SG": "Singapore",
	"TH": "Thailand",
	"TR": "Turkey",
	"US": "United States",
	"VN": "Vietnam",
	"ZA": "South Africa",
}

// normalizeCountry maps a known two-letter code to its display name and passes
// unknown codes through unchanged.
func normalizeCountry(code string) string {
	trimmed := strings.TrimSpace(code)
	if name, ok := countryNames[strings.ToUpper(trimmed)]; ok {
		return name
	}
	return trimmed
}

// externalIDSuffix returns the trailing characters of an external identifier,
// used for deterministic placeholder names and contact identifiers.
func externalIDSuffix(externalID string) string {
	const suffixLen = 8
	if len(externalID) <= suffixLen {
		return externalID
	}
	return externalID[len(externalID)-suffixLen:]
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func strPtr(v string) *string {
	return &v
}

// optional trims the pointed-to value and collapses empty strings to nil so
// merge updates never overwrite a stored value with a blank.
func optional(p *string) *string {
	v := strValue(p)
	if v == "" {
		return nil
	}
	return &v
}

// deriveName applies the name derivation policy, in order:
//  1. COMPANY with a company name: company field set, last-name analog set to it.
//  2. PERSONAL: first/last as provided.
//  3. Still missing: split the bank account holder name on whitespace; a single
//     token becomes the last name alone.
//  4. Nothing derivable: deterministic placeholder last name carrying a suffix
//     of the external identifier.
func deriveName(b airwallex.Beneficiary) (first, last string, company *string) {
	if b.EntityType == airwallex.EntityTypeCompany {
		if name := strValue(b.CompanyName); name != "" {
			return "", name, strPtr(name)
		}
	}

	if b.EntityType == airwallex.EntityTypePersonal {
		first = strValue(b.FirstName)
		last = strValue(b.LastName)
	}

	if first == "" && last == "" && b.BankDetails != nil {
		if holder := strValue(b.BankDetails.AccountName); holder != "" {
			tokens := strings.Fields(holder)
			if len(tokens) == 1 {
				last = tokens[0]
			} else if len(tokens) > 1 {
				first = tokens[0]
				last = strings.Join(tokens[1:], " ")
			}
		}
	}

	if first == "" && last == "" {
		last = fmt.Sprintf("Beneficiary %s", externalIDSuffix(b.BeneficiaryID))
	}

	return first, last, company
}

// placeholderEmail derives a deterministic contact identifier from the
// external id for created contacts that carry no real email.
func placeholderEmail(externalID string) string {
	return fmt.Sprintf("beneficiary-%s@sync.procura.invalid", strings.ToLower(externalIDSuffix(externalID)))
}

// transformBeneficiary maps one external record to the partial contact it
// represents. It is a pure function; persistence decisions belong to the
// orchestrator. Every output stamps status SYNCED, the sync timestamp, and
// the raw payload snapshot.
func transformBeneficiary(b airwallex.Beneficiary, now time.Time) (domain.ContactFields, error) {
	var fields domain.ContactFields

	externalID := strings.TrimSpace(b.BeneficiaryID)
	if externalID == "" {
		return fields, fmt.Errorf("beneficiary record missing external identifier")
	}
	if strings.TrimSpace(b.EntityType) == "" {
		return fields, fmt.Errorf("beneficiary %s missing entity type", externalID)
	}

	first, last, company := deriveName(b)
	fields.FirstName = first
	fields.LastName = last
	fields.CompanyName = company

	if addr := b.Address; addr != nil {
		fields.AddressLine = optional(addr.StreetAddress)
		fields.City = optional(addr.City)
		fields.State = optional(addr.State)
		fields.PostalCode = optional(addr.Postcode)
		if code := strValue(addr.CountryCode); code != "" {
			fields.Country = strPtr(normalizeCountry(code))
		}
	}

	if bank := b.BankDetails; bank != nil {
		fields.BankAccountName = optional(bank.AccountName)
		fields.BankAccountNumber = optional(bank.AccountNumber)
		fields.BankName = optional(bank.BankName)
		fields.SwiftCode = optional(bank.SwiftCode)
		fields.IBAN = optional(bank.IBAN)
		fields.Currency = optional(bank.AccountCurrency)
		fields.ClearingSystem = optional(bank.LocalClearingSystem)
	}

	if info := b.AdditionalInfo; info != nil {
		fields.Email = optional(info.PersonalEmail)
		fields.PersonalNationality = optional(info.PersonalNationality)
		fields.PersonalOccupation = optional(info.PersonalOccupation)
		fields.PersonalIDNumber = optional(info.PersonalIDNumber)
		fields.LegalRepFirstName = optional(info.LegalRepFirstName)
		fields.LegalRepLastName = optional(info.LegalRepLastName)
		fields.LegalRepEmail = optional(info.LegalRepEmail)
		fields.BusinessRegistrationNumber = optional(info.BusinessRegistrationNumber)
		fields.BusinessRegistrationType = optional(info.BusinessRegistrationType)
	}

	if len(b.PaymentMethods) > 0 {
		fields.PaymentMethods = append([]string(nil), b.PaymentMethods...)
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return fields, fmt.Errorf("failed to snapshot beneficiary %s: %w", externalID, err)
	}

	fields.AirwallexBeneficiaryID = externalID
	fields.SyncStatus = domain.SyncStatusSynced
	fields.LastSyncedAt = now
	fields.RawPayload = raw

	return fields, nil
}
