/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL needed by the reconciliation engine against
 * the `contacts` and `sync_runs` tables.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/procura/reconciliation-service/internal/domain"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrSyncRunNotFound = errors.New("sync run not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const contactColumns = `
	id, category, first_name, last_name, company_name, email, phone,
	address_line, city, state, postal_code, country,
	bank_account_name, bank_account_number, bank_name, swift_code, iban,
	currency, clearing_system,
	legal_rep_first_name, legal_rep_last_name, legal_rep_email,
	business_registration_number, business_registration_type,
	personal_nationality, personal_occupation, personal_id_number,
	payment_methods, airwallex_beneficiary_id,
	sync_status, last_synced_at, last_sync_error, raw_payload,
	created_at, updated_at`

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var contact domain.Contact
	err := row.Scan(
		&contact.ID,
		&contact.Category,
		&contact.FirstName,
		&contact.LastName,
		&contact.CompanyName,
		&contact.Email,
		&contact.Phone,
		&contact.AddressLine,
		&contact.City,
		&contact.State,
		&contact.PostalCode,
		&contact.Country,
		&contact.BankAccountName,
		&contact.BankAccountNumber,
		&contact.BankName,
		&contact.SwiftCode,
		&contact.IBAN,
		&contact.Currency,
		&contact.ClearingSystem,
		&contact.LegalRepFirstName,
		&contact.LegalRepLastName,
		&contact.LegalRepEmail,
		&contact.BusinessRegistrationNumber,
		&contact.BusinessRegistrationType,
		&contact.PersonalNationality,
		&contact.PersonalOccupation,
		&contact.PersonalIDNumber,
		&contact.PaymentMethods,
		&contact.AirwallexBeneficiaryID,
		&contact.SyncStatus,
		&contact.LastSyncedAt,
		&contact.LastSyncError,
		&contact.RawPayload,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// FindContactByBeneficiaryID resolves a contact through its link field.
func (r *PostgresRepository) FindContactByBeneficiaryID(ctx context.Context, category domain.EntityCategory, beneficiaryID string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE category = $1 AND airwallex_beneficiary_id = $2`
	return scanContact(r.db.QueryRow(ctx, query, category, beneficiaryID))
}

// FindUnlinkedContactByEmail looks up a contact by email among contacts of the
// category whose link field is still unset. The IS NULL condition is load
// bearing: a contact already linked to one external record must never be
// matched (and re-linked) through its email.
func (r *PostgresRepository) FindUnlinkedContactByEmail(ctx context.Context, category domain.EntityCategory, email string) (*domain.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE category = $1
		  AND airwallex_beneficiary_id IS NULL
		  AND lower(btrim(email)) = lower(btrim($2))
		ORDER BY created_at
		LIMIT 1`
	return scanContact(r.db.QueryRow(ctx, query, category, email))
}

// FindContactByID retrieves a contact by its internal identifier.
func (r *PostgresRepository) FindContactByID(ctx context.Context, contactID uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return scanContact(r.db.QueryRow(ctx, query, contactID))
}

// CreateContact inserts a new contact created by the engine from a transformed
// external record.
func (r *PostgresRepository) CreateContact(ctx context.Context, contact *domain.Contact) error {
	query := `
		INSERT INTO contacts (
			id, category, first_name, last_name, company_name, email, phone,
			address_line, city, state, postal_code, country,
			bank_account_name, bank_account_number, bank_name, swift_code, iban,
			currency, clearing_system,
			legal_rep_first_name, legal_rep_last_name, legal_rep_email,
			business_registration_number, business_registration_type,
			personal_nationality, personal_occupation, personal_id_number,
			payment_methods, airwallex_beneficiary_id,
			sync_status, last_synced_at, last_sync_error, raw_payload,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
			$29, $30, $31, $32, $33, NOW(), NOW()
		)`
	_, err := r.db.Exec(ctx, query,
		contact.ID,
		contact.Category,
		contact.FirstName,
		contact.LastName,
		contact.CompanyName,
		contact.Email,
		contact.Phone,
		contact.AddressLine,
		contact.City,
		contact.State,
		contact.PostalCode,
		contact.Country,
		contact.BankAccountName,
		contact.BankAccountNumber,
		contact.BankName,
		contact.SwiftCode,
		contact.IBAN,
		contact.Currency,
		contact.ClearingSystem,
		contact.LegalRepFirstName,
		contact.LegalRepLastName,
		contact.LegalRepEmail,
		contact.BusinessRegistrationNumber,
		contact.BusinessRegistrationType,
		contact.PersonalNationality,
		contact.PersonalOccupation,
		contact.PersonalIDNumber,
		contact.PaymentMethods,
		contact.AirwallexBeneficiaryID,
		contact.SyncStatus,
		contact.LastSyncedAt,
		contact.LastSyncError,
		contact.RawPayload,
	)
	return err
}

// ApplySyncFields merges the transformed fields onto an existing contact.
// Nil transformed fields leave the stored value untouched (COALESCE); the
// sync status, timestamp, link field and raw snapshot are always refreshed
// and the previous sync error is cleared. The link field write is guarded so
// an already-linked row keeps its original link.
func (r *PostgresRepository) ApplySyncFields(ctx context.Context, contactID uuid.UUID, fields domain.ContactFields) error {
	query := `
		UPDATE contacts
		SET
			first_name = $1,
			last_name = $2,
			company_name = COALESCE($3, company_name),
			email = COALESCE($4, email),
			phone = COALESCE($5, phone),
			address_line = COALESCE($6, address_line),
			city = COALESCE($7, city),
			state = COALESCE($8, state),
			postal_code = COALESCE($9, postal_code),
			country = COALESCE($10, country),
			bank_account_name = COALESCE($11, bank_account_name),
			bank_account_number = COALESCE($12, bank_account_number),
			bank_name = COALESCE($13, bank_name),
			swift_code = COALESCE($14, swift_code),
			iban = COALESCE($15, iban),
			currency = COALESCE($16, currency),
			clearing_system = COALESCE($17, clearing_system),
			legal_rep_first_name = COALESCE($18, legal_rep_first_name),
			legal_rep_last_name = COALESCE($19, legal_rep_last_name),
			legal_rep_email = COALESCE($20, legal_rep_email),
			business_registration_number = COALESCE($21, business_registration_number),
			business_registration_type = COALESCE($22, business_registration_type),
			personal_nationality = COALESCE($23, personal_nationality),
			personal_occupation = COALESCE($24, personal_occupation),
			personal_id_number = COALESCE($25, personal_id_number),
			payment_methods = COALESCE($26, payment_methods),
			airwallex_beneficiary_id = COALESCE(airwallex_beneficiary_id, $27),
			sync_status = $28,
			last_synced_at = $29,
			last_sync_error = NULL,
			raw_payload = $30,
			updated_at = NOW()
		WHERE id = $31`
	tag, err := r.db.Exec(ctx, query,
		fields.FirstName,
		fields.LastName,
		fields.CompanyName,
		fields.Email,
		fields.Phone,
		fields.AddressLine,
		fields.City,
		fields.State,
		fields.PostalCode,
		fields.Country,
		fields.BankAccountName,
		fields.BankAccountNumber,
		fields.BankName,
		fields.SwiftCode,
		fields.IBAN,
		fields.Currency,
		fields.ClearingSystem,
		fields.LegalRepFirstName,
		fields.LegalRepLastName,
		fields.LegalRepEmail,
		fields.BusinessRegistrationNumber,
		fields.BusinessRegistrationType,
		fields.PersonalNationality,
		fields.PersonalOccupation,
		fields.PersonalIDNumber,
		fields.PaymentMethods,
		fields.AirwallexBeneficiaryID,
		fields.SyncStatus,
		fields.LastSyncedAt,
		fields.RawPayload,
		contactID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// UpdateContactSyncStatus records the outcome of the most recent sync attempt
// for a contact. An empty syncError clears the stored message.
func (r *PostgresRepository) UpdateContactSyncStatus(ctx context.Context, contactID uuid.UUID, status domain.SyncStatus, syncError string) error {
	query := `
		UPDATE contacts
		SET sync_status = $1,
		    last_sync_error = NULLIF($2, ''),
		    last_synced_at = NOW(),
		    updated_at = NOW()
		WHERE id = $3`
	tag, err := r.db.Exec(ctx, query, status, syncError, contactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// CreateSyncRun inserts a new in-progress run log record.
func (r *PostgresRepository) CreateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, category, status, started_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(ctx, query, run.ID, run.Category, run.Status, run.StartedAt)
	return err
}

// FinishSyncRun records the terminal state and counters for a run. The result
// may be nil when the run failed before any record was processed.
func (r *PostgresRepository) FinishSyncRun(ctx context.Context, runID uuid.UUID, status string, result *domain.SyncResult, runError string) error {
	var totalFetched, newCount, updatedCount, conflictCount, errorCount int
	if result != nil {
		totalFetched = result.TotalFetched
		newCount = result.NewCount
		updatedCount = result.UpdatedCount
		conflictCount = len(result.Conflicts)
		errorCount = len(result.Errors)
	}

	query := `
		UPDATE sync_runs
		SET status = $1,
		    total_fetched = $2,
		    new_count = $3,
		    updated_count = $4,
		    conflict_count = $5,
		    error_count = $6,
		    error = NULLIF($7, ''),
		    finished_at = NOW()
		WHERE id = $8`
	tag, err := r.db.Exec(ctx, query, status, totalFetched, newCount, updatedCount, conflictCount, errorCount, runError, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncRunNotFound
	}
	return nil
}

// ListSyncRuns returns the most recent run log records, newest first.
func (r *PostgresRepository) ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, category, status, total_fetched, new_count, updated_count,
		       conflict_count, error_count, error, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		if err := rows.Scan(
			&run.ID,
			&run.Category,
			&run.Status,
			&run.TotalFetched,
			&run.NewCount,
			&run.UpdatedCount,
			&run.ConflictCount,
			&run.ErrorCount,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
