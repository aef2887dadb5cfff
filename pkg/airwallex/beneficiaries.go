/**
 * @description
 * This file defines the external beneficiary payload shapes and the paginated
 * listing operations. Beneficiaries are the entities the account holder pays;
 * counterparties are the inverse relationship (entities that pay the account
 * holder) and share the same record shape on the wire.
 *
 * Every field except the identifier and entity type is optional on the wire,
 * so nested sections are modelled as pointers and presence is checked at each
 * mapping step downstream.
 */
package airwallex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const (
	// EntityTypePersonal and EntityTypeCompany are the two entity types the
	// platform emits for a beneficiary record.
	EntityTypePersonal = "PERSONAL"
	EntityTypeCompany  = "COMPANY"

	beneficiariesPath  = "/api/v1/beneficiaries"
	counterpartiesPath = "/api/v1/counterparties"
)

// Beneficiary is one external record as returned by the listing endpoints.
type Beneficiary struct {
	BeneficiaryID  string          `json:"beneficiary_id"`
	EntityType     string          `json:"entity_type"`
	FirstName      *string         `json:"first_name,omitempty"`
	LastName       *string         `json:"last_name,omitempty"`
	CompanyName    *string         `json:"company_name,omitempty"`
	Address        *Address        `json:"address,omitempty"`
	BankDetails    *BankDetails    `json:"bank_details,omitempty"`
	AdditionalInfo *AdditionalInfo `json:"additional_info,omitempty"`
	PaymentMethods []string        `json:"payment_methods,omitempty"`
}

// Address is the optional postal address section of a beneficiary.
type Address struct {
	StreetAddress *string `json:"street_address,omitempty"`
	City          *string `json:"city,omitempty"`
	State         *string `json:"state,omitempty"`
	Postcode      *string `json:"postcode,omitempty"`
	CountryCode   *string `json:"country_code,omitempty"`
}

// BankDetails is the optional bank account section of a beneficiary.
type BankDetails struct {
	AccountName         *string `json:"account_name,omitempty"`
	AccountNumber       *string `json:"account_number,omitempty"`
	BankName            *string `json:"bank_name,omitempty"`
	SwiftCode           *string `json:"swift_code,omitempty"`
	IBAN                *string `json:"iban,omitempty"`
	AccountCurrency     *string `json:"account_currency,omitempty"`
	LocalClearingSystem *string `json:"local_clearing_system,omitempty"`
}

// AdditionalInfo carries the personal, legal-representative and business
// registration extras attached to some beneficiaries.
type AdditionalInfo struct {
	PersonalEmail              *string `json:"personal_email,omitempty"`
	PersonalNationality        *string `json:"personal_nationality,omitempty"`
	PersonalOccupation         *string `json:"personal_occupation,omitempty"`
	PersonalIDNumber           *string `json:"personal_id_number,omitempty"`
	LegalRepFirstName          *string `json:"legal_rep_first_name,omitempty"`
	LegalRepLastName           *string `json:"legal_rep_last_name,omitempty"`
	LegalRepEmail              *string `json:"legal_rep_email,omitempty"`
	BusinessRegistrationNumber *string `json:"business_registration_number,omitempty"`
	BusinessRegistrationType   *string `json:"business_registration_type,omitempty"`
}

// Page is one response from a cursor-paginated listing endpoint.
type Page struct {
	Items      []Beneficiary `json:"items"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor"`
}

// ListBeneficiariesPage fetches a single page of the beneficiary listing.
func (c *Client) ListBeneficiariesPage(ctx context.Context, cursor string, limit int) (*Page, error) {
	return c.fetchPage(ctx, beneficiariesPath, cursor, limit)
}

// ListCounterpartiesPage fetches a single page of the counterparty listing.
func (c *Client) ListCounterpartiesPage(ctx context.Context, cursor string, limit int) (*Page, error) {
	return c.fetchPage(ctx, counterpartiesPath, cursor, limit)
}

func (c *Client) fetchPage(ctx context.Context, path, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = c.pageSize
	}
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	if strings.TrimSpace(cursor) != "" {
		query.Set("cursor", cursor)
	}

	body, _, err := c.doGet(ctx, path+"?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &PageFetchError{Endpoint: path, Message: fmt.Sprintf("failed to decode page: %v", err)}
	}
	return &page, nil
}

// ListAllBeneficiaries walks the beneficiary listing to completion, preserving
// the server's page order. It re-authenticates transparently between pages
// when the token has expired, without losing accumulated items or restarting
// pagination. On a mid-run failure the items fetched so far are returned
// alongside the error so the caller can still process them.
func (c *Client) ListAllBeneficiaries(ctx context.Context) ([]Beneficiary, error) {
	return c.listAll(ctx, beneficiariesPath)
}

// ListAllCounterparties walks the counterparty listing to completion with the
// same semantics as ListAllBeneficiaries.
func (c *Client) ListAllCounterparties(ctx context.Context) ([]Beneficiary, error) {
	return c.listAll(ctx, counterpartiesPath)
}

func (c *Client) listAll(ctx context.Context, path string) ([]Beneficiary, error) {
	var items []Beneficiary
	cursor := ""
	for {
		if err := c.ensureAuthenticated(ctx); err != nil {
			return items, err
		}
		page, err := c.fetchPage(ctx, path, cursor, c.pageSize)
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)

		// A malformed response with has_more set but no cursor means "no more
		// pages", never an infinite retry.
		if !page.HasMore || strings.TrimSpace(page.NextCursor) == "" {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

// GetBeneficiary fetches a single beneficiary by its external identifier.
// A not-found response returns (nil, nil) rather than an error.
func (c *Client) GetBeneficiary(ctx context.Context, beneficiaryID string) (*Beneficiary, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	body, notFound, err := c.doGet(ctx, beneficiariesPath+"/"+url.PathEscape(beneficiaryID))
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, nil
	}

	var beneficiary Beneficiary
	if err := json.Unmarshal(body, &beneficiary); err != nil {
		return nil, &PageFetchError{Endpoint: beneficiariesPath, Message: fmt.Sprintf("failed to decode beneficiary: %v", err)}
	}
	return &beneficiary, nil
}
