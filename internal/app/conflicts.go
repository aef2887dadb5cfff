/**
 * @description
 * This file contains the conflict detector. It compares a fixed set of
 * sensitive fields between the stored contact and the freshly transformed
 * external fields, and records informational conflicts. Detection never halts
 * or blocks the subsequent upsert.
 */

package app

import (
	"strings"

	"github.com/procura/reconciliation-service/internal/domain"
)

// sensitiveField pairs a reported field name with its local and external
// values for comparison.
type sensitiveField struct {
	name     string
	local    *string
	external *string
}

// detectConflicts emits one conflict per sensitive field where both the local
// and the external value are non-empty and differ. Absence on either side is
// never a conflict. The default resolution marker is external-wins: the
// upsert proceeds regardless and the local value is preserved in the report.
func detectConflicts(existing *domain.Contact, fields domain.ContactFields) []domain.SyncConflict {
	compared := []sensitiveField{
		{name: "email", local: existing.Email, external: fields.Email},
		{name: "phone", local: existing.Phone, external: fields.Phone},
		{name: "address_line", local: existing.AddressLine, external: fields.AddressLine},
		{name: "bank_account_number", local: existing.BankAccountNumber, external: fields.BankAccountNumber},
	}

	var conflicts []domain.SyncConflict
	for _, field := range compared {
		local := trimmed(field.local)
		external := trimmed(field.external)
		if local == "" || external == "" || local == external {
			continue
		}
		conflicts = append(conflicts, domain.SyncConflict{
			ContactID:     existing.ID,
			ContactName:   existing.DisplayName(),
			BeneficiaryID: fields.AirwallexBeneficiaryID,
			Field:         field.name,
			LocalValue:    local,
			ExternalValue: external,
			Resolution:    domain.ConflictResolutionExternalWins,
		})
	}
	return conflicts
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
