package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procura/reconciliation-service/internal/domain"
	"github.com/procura/reconciliation-service/internal/store"
	"github.com/procura/reconciliation-service/pkg/airwallex"
)

// syncRepoStub is an in-memory repository covering the surface the
// orchestrator touches. Created contacts become findable by link field so a
// second run sees them as existing.
type syncRepoStub struct {
	store.Repository

	byBeneficiaryID map[string]*domain.Contact
	byEmail         map[string]*domain.Contact

	created        []*domain.Contact
	appliedFields  []domain.ContactFields
	statusUpdates  []domain.SyncStatus
	createErrFor   string
	applyErrFor    uuid.UUID
	finishedStatus string
	finishedError  string
	runCreated     bool
}

func newSyncRepoStub() *syncRepoStub {
	return &syncRepoStub{
		byBeneficiaryID: map[string]*domain.Contact{},
		byEmail:         map[string]*domain.Contact{},
	}
}

func (s *syncRepoStub) FindContactByBeneficiaryID(ctx context.Context, category domain.EntityCategory, beneficiaryID string) (*domain.Contact, error) {
	if contact, ok := s.byBeneficiaryID[beneficiaryID]; ok {
		return contact, nil
	}
	return nil, store.ErrContactNotFound
}

func (s *syncRepoStub) FindUnlinkedContactByEmail(ctx context.Context, category domain.EntityCategory, email string) (*domain.Contact, error) {
	if contact, ok := s.byEmail[email]; ok && contact.AirwallexBeneficiaryID == nil {
		return contact, nil
	}
	return nil, store.ErrContactNotFound
}

func (s *syncRepoStub) CreateContact(ctx context.Context, contact *domain.Contact) error {
	if s.createErrFor != "" && contact.AirwallexBeneficiaryID != nil && *contact.AirwallexBeneficiaryID == s.createErrFor {
		return fmt.Errorf("insert rejected")
	}
	s.created = append(s.created, contact)
	if contact.AirwallexBeneficiaryID != nil {
		s.byBeneficiaryID[*contact.AirwallexBeneficiaryID] = contact
	}
	return nil
}

func (s *syncRepoStub) ApplySyncFields(ctx context.Context, contactID uuid.UUID, fields domain.ContactFields) error {
	if s.applyErrFor != uuid.Nil && contactID == s.applyErrFor {
		return fmt.Errorf("update rejected")
	}
	s.appliedFields = append(s.appliedFields, fields)
	return nil
}

func (s *syncRepoStub) UpdateContactSyncStatus(ctx context.Context, contactID uuid.UUID, status domain.SyncStatus, syncError string) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *syncRepoStub) CreateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	s.runCreated = true
	return nil
}

func (s *syncRepoStub) FinishSyncRun(ctx context.Context, runID uuid.UUID, status string, result *domain.SyncResult, runError string) error {
	s.finishedStatus = status
	s.finishedError = runError
	return nil
}

// airwallexBackend scripts the login and listing endpoints for a service-level
// test run.
type airwallexBackend struct {
	records    []airwallex.Beneficiary
	pageSize   int
	failAtPage int
	rejectAuth bool

	listCalls         int
	beneficiaryCalls  int
	counterpartyCalls int
}

func (b *airwallexBackend) start(t *testing.T) (*httptest.Server, *airwallex.Client) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/authentication/login", func(w http.ResponseWriter, r *http.Request) {
		if b.rejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"invalid api key"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"token":      "token-1",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})

	serveListing := func(w http.ResponseWriter, r *http.Request) {
		b.listCalls++
		if b.failAtPage > 0 && b.listCalls >= b.failAtPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		offset := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			offset, _ = strconv.Atoi(cursor)
		}
		end := offset + b.pageSize
		if end > len(b.records) {
			end = len(b.records)
		}
		page := airwallex.Page{Items: b.records[offset:end], HasMore: end < len(b.records)}
		if page.HasMore {
			page.NextCursor = strconv.Itoa(end)
		}
		json.NewEncoder(w).Encode(page)
	}
	mux.HandleFunc("/api/v1/beneficiaries", func(w http.ResponseWriter, r *http.Request) {
		b.beneficiaryCalls++
		serveListing(w, r)
	})
	mux.HandleFunc("/api/v1/counterparties", func(w http.ResponseWriter, r *http.Request) {
		b.counterpartyCalls++
		serveListing(w, r)
	})

	mux.HandleFunc("/api/v1/beneficiaries/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/v1/beneficiaries/"):]
		for _, record := range b.records {
			if record.BeneficiaryID == id {
				json.NewEncoder(w).Encode(record)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := airwallex.NewClient(server.URL, "client-id", "api-key")
	client.ConfigurePagination(b.pageSize)
	return server, client
}

func personalRecord(id, first, last, email string) airwallex.Beneficiary {
	record := airwallex.Beneficiary{
		BeneficiaryID: id,
		EntityType:    airwallex.EntityTypePersonal,
		FirstName:     ptrString(first),
		LastName:      ptrString(last),
	}
	if email != "" {
		record.AdditionalInfo = &airwallex.AdditionalInfo{PersonalEmail: ptrString(email)}
	}
	return record
}

func TestRunSync_CreatesContactsAndIsolatesBadRecords(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
		personalRecord("ben_002", "James", "Okoro", "james@example.com"),
		{BeneficiaryID: "ben_003"}, // missing entity type
		personalRecord("ben_004", "Chen", "Wei", ""),
		personalRecord("ben_005", "Ana", "Lima", "ana@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 2}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	service := NewService(repo, client, nil)

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.TotalFetched != 5 {
		t.Fatalf("expected 5 fetched, got %d", result.TotalFetched)
	}
	if result.NewCount != 4 {
		t.Fatalf("expected 4 new contacts, got %d", result.NewCount)
	}
	if result.UpdatedCount != 0 {
		t.Fatalf("expected 0 updates, got %d", result.UpdatedCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 record error, got %d: %+v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].BeneficiaryID != "ben_003" {
		t.Fatalf("expected error tagged with ben_003, got %q", result.Errors[0].BeneficiaryID)
	}
	if len(repo.created) != 4 {
		t.Fatalf("expected 4 creates, got %d", len(repo.created))
	}
	if repo.finishedStatus != domain.SyncRunStatusCompleted {
		t.Fatalf("expected run marked completed, got %q", repo.finishedStatus)
	}

	// A record without a real email gets a deterministic placeholder so the
	// contact row always carries a non-empty identifier.
	for _, contact := range repo.created {
		if *contact.AirwallexBeneficiaryID == "ben_004" {
			if contact.Email == nil || *contact.Email == "" {
				t.Fatal("expected placeholder email for record without one")
			}
		}
	}
}

func TestRunSync_SecondRunUpdatesWithoutConflicts(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
		personalRecord("ben_002", "James", "Okoro", "james@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 10}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	service := NewService(repo, client, nil)

	if _, err := service.RunSync(context.Background(), domain.CategoryContractor); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.NewCount != 0 {
		t.Fatalf("expected 0 new on second run, got %d", result.NewCount)
	}
	if result.UpdatedCount != 2 {
		t.Fatalf("expected 2 updates on second run, got %d", result.UpdatedCount)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("expected no conflicts for unchanged records, got %+v", result.Conflicts)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors on second run, got %+v", result.Errors)
	}
}

func TestRunSync_LinksUnlinkedContactByEmail(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 10}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	manual := &domain.Contact{
		ID:        uuid.New(),
		Category:  domain.CategoryContractor,
		FirstName: "Maria",
		LastName:  "Santos",
		Email:     ptrString("maria@example.com"),
	}
	repo.byEmail["maria@example.com"] = manual

	service := NewService(repo, client, nil)

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.NewCount != 0 {
		t.Fatalf("expected the existing contact to be linked, not duplicated; new=%d", result.NewCount)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("expected 1 update, got %d", result.UpdatedCount)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no creates, got %d", len(repo.created))
	}
	if len(repo.appliedFields) != 1 {
		t.Fatalf("expected merge update applied once, got %d", len(repo.appliedFields))
	}
	if repo.appliedFields[0].AirwallexBeneficiaryID != "ben_001" {
		t.Fatalf("expected link field carried into the update, got %q", repo.appliedFields[0].AirwallexBeneficiaryID)
	}
}

func TestRunSync_UpdateFailureMarksContactError(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
		personalRecord("ben_002", "James", "Okoro", "james@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 10}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	existing := &domain.Contact{
		ID:        uuid.New(),
		Category:  domain.CategoryContractor,
		FirstName: "Maria",
		LastName:  "Santos",
	}
	repo.byBeneficiaryID["ben_001"] = existing
	repo.applyErrFor = existing.ID

	service := NewService(repo, client, nil)

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].BeneficiaryID != "ben_001" {
		t.Fatalf("expected 1 error tagged ben_001, got %+v", result.Errors)
	}
	if result.NewCount != 1 {
		t.Fatalf("expected the second record to still be created, got new=%d", result.NewCount)
	}
	if len(repo.statusUpdates) != 1 || repo.statusUpdates[0] != domain.SyncStatusError {
		t.Fatalf("expected ERROR status persisted for the failed update, got %+v", repo.statusUpdates)
	}
}

func TestRunSync_MidPaginationFailureProcessesAccumulatedRecords(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
		personalRecord("ben_002", "James", "Okoro", "james@example.com"),
		personalRecord("ben_003", "Chen", "Wei", "chen@example.com"),
		personalRecord("ben_004", "Ana", "Lima", "ana@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 2, failAtPage: 2}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	service := NewService(repo, client, nil)

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err != nil {
		t.Fatalf("expected partial results without a fatal error, got %v", err)
	}
	if result.TotalFetched != 2 {
		t.Fatalf("expected the first page to be processed, got %d fetched", result.TotalFetched)
	}
	if result.NewCount != 2 {
		t.Fatalf("expected 2 creates from the first page, got %d", result.NewCount)
	}

	// The abort is surfaced on the run itself; the per-record error list
	// stays reserved for records that individually failed.
	if result.ListingError == "" {
		t.Fatal("expected the pagination abort recorded as a listing error")
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no per-record errors, got %+v", result.Errors)
	}
	if repo.finishedStatus != domain.SyncRunStatusFailed {
		t.Fatalf("expected run marked failed, got %q", repo.finishedStatus)
	}
}

func TestRunSync_AuthFailureIsFatal(t *testing.T) {
	backend := &airwallexBackend{rejectAuth: true, pageSize: 2}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	service := NewService(repo, client, nil)

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err == nil {
		t.Fatal("expected an error when authentication fails")
	}
	var authErr *airwallex.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected an AuthError, got %T", err)
	}
	if result != nil {
		t.Fatalf("expected no result for a run that never fetched, got %+v", result)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no creates, got %d", len(repo.created))
	}
	if repo.finishedStatus != domain.SyncRunStatusFailed {
		t.Fatalf("expected run marked failed, got %q", repo.finishedStatus)
	}
}

func TestRunSync_ClientCategoryFetchesCounterpartyListing(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
		personalRecord("ben_002", "James", "Okoro", "james@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 10}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	service := NewService(repo, client, nil)

	result, err := service.RunSync(context.Background(), domain.CategoryClient)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if backend.counterpartyCalls == 0 {
		t.Fatal("expected the client run to hit the counterparty listing")
	}
	if backend.beneficiaryCalls != 0 {
		t.Fatalf("expected the client run to skip the beneficiary listing, got %d calls", backend.beneficiaryCalls)
	}
	if result.NewCount != 2 {
		t.Fatalf("expected 2 new contacts, got %d", result.NewCount)
	}
	for _, contact := range repo.created {
		if contact.Category != domain.CategoryClient {
			t.Fatalf("expected created contacts in the client category, got %q", contact.Category)
		}
	}

	if _, err := NewService(newSyncRepoStub(), client, nil).RunSync(context.Background(), domain.CategorySupplier); err != nil {
		t.Fatalf("supplier run failed: %v", err)
	}
	if backend.beneficiaryCalls == 0 {
		t.Fatal("expected the supplier run to hit the beneficiary listing")
	}
}

// runGuardStub scripts the lock outcomes a Redis guard can produce and counts
// releases so lock hygiene is observable.
type runGuardStub struct {
	acquireErr error
	denyLock   bool

	releases int
}

func (g *runGuardStub) AcquireRunLock(ctx context.Context, category string, ttl time.Duration) (bool, error) {
	if g.acquireErr != nil {
		return false, g.acquireErr
	}
	return !g.denyLock, nil
}

func (g *runGuardStub) ReleaseRunLock(ctx context.Context, category string) error {
	g.releases++
	return nil
}

func (g *runGuardStub) ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error) {
	return 0, 0, nil
}

func TestRunSync_ErroredLockAcquireNeverReleasesForeignLock(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 10}
	_, client := backend.start(t)

	repo := newSyncRepoStub()
	service := NewService(repo, client, nil)
	guard := &runGuardStub{acquireErr: fmt.Errorf("redis unavailable")}
	service.SetSyncGuard(guard)

	result, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if err != nil {
		t.Fatalf("expected the run to proceed unguarded, got %v", err)
	}
	if result.NewCount != 1 {
		t.Fatalf("expected 1 new contact, got %d", result.NewCount)
	}
	// The key may belong to a concurrent run that acquired it while this
	// run's acquire errored. Deleting it would let a third run overlap.
	if guard.releases != 0 {
		t.Fatalf("expected no release after an errored acquire, got %d", guard.releases)
	}
}

func TestRunSync_AcquiredLockIsReleased(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 10}
	_, client := backend.start(t)

	service := NewService(newSyncRepoStub(), client, nil)
	guard := &runGuardStub{}
	service.SetSyncGuard(guard)

	if _, err := service.RunSync(context.Background(), domain.CategoryContractor); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if guard.releases != 1 {
		t.Fatalf("expected exactly one release, got %d", guard.releases)
	}
}

func TestRunSync_HeldLockRefusesRunWithoutReleasing(t *testing.T) {
	backend := &airwallexBackend{pageSize: 10}
	_, client := backend.start(t)

	service := NewService(newSyncRepoStub(), client, nil)
	guard := &runGuardStub{denyLock: true}
	service.SetSyncGuard(guard)

	_, err := service.RunSync(context.Background(), domain.CategoryContractor)
	if !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Fatalf("expected ErrSyncAlreadyRunning, got %v", err)
	}
	if guard.releases != 0 {
		t.Fatalf("expected the holder's lock left untouched, got %d releases", guard.releases)
	}
}

type resyncRepoStub struct {
	syncRepoStub

	contact *domain.Contact
}

func (s *resyncRepoStub) FindContactByID(ctx context.Context, contactID uuid.UUID) (*domain.Contact, error) {
	if s.contact == nil || s.contact.ID != contactID {
		return nil, store.ErrContactNotFound
	}
	return s.contact, nil
}

func TestResyncContact_RefusesUnlinkedContact(t *testing.T) {
	backend := &airwallexBackend{pageSize: 2}
	_, client := backend.start(t)

	repo := &resyncRepoStub{syncRepoStub: *newSyncRepoStub()}
	repo.contact = &domain.Contact{
		ID:        uuid.New(),
		Category:  domain.CategorySupplier,
		FirstName: "Maria",
		LastName:  "Santos",
	}

	service := NewService(repo, client, nil)

	_, err := service.ResyncContact(context.Background(), repo.contact.ID)
	if !errors.Is(err, ErrContactNotLinked) {
		t.Fatalf("expected ErrContactNotLinked, got %v", err)
	}
}

func TestResyncContact_VanishedBeneficiaryMarksError(t *testing.T) {
	backend := &airwallexBackend{pageSize: 2}
	_, client := backend.start(t)

	repo := &resyncRepoStub{syncRepoStub: *newSyncRepoStub()}
	repo.contact = &domain.Contact{
		ID:                     uuid.New(),
		Category:               domain.CategorySupplier,
		FirstName:              "Maria",
		LastName:               "Santos",
		AirwallexBeneficiaryID: ptrString("ben_gone"),
	}

	service := NewService(repo, client, nil)

	_, err := service.ResyncContact(context.Background(), repo.contact.ID)
	if !errors.Is(err, ErrBeneficiaryGone) {
		t.Fatalf("expected ErrBeneficiaryGone, got %v", err)
	}
	if len(repo.statusUpdates) != 1 || repo.statusUpdates[0] != domain.SyncStatusError {
		t.Fatalf("expected ERROR status persisted, got %+v", repo.statusUpdates)
	}
}

func TestResyncContact_ReappliesTransformedFields(t *testing.T) {
	records := []airwallex.Beneficiary{
		personalRecord("ben_001", "Maria", "Santos", "maria@new.example.com"),
	}
	backend := &airwallexBackend{records: records, pageSize: 2}
	_, client := backend.start(t)

	repo := &resyncRepoStub{syncRepoStub: *newSyncRepoStub()}
	repo.contact = &domain.Contact{
		ID:                     uuid.New(),
		Category:               domain.CategorySupplier,
		FirstName:              "Maria",
		LastName:               "Santos",
		AirwallexBeneficiaryID: ptrString("ben_001"),
	}

	service := NewService(repo, client, nil)

	contact, err := service.ResyncContact(context.Background(), repo.contact.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if contact == nil {
		t.Fatal("expected the refreshed contact to be returned")
	}
	if len(repo.appliedFields) != 1 {
		t.Fatalf("expected merge update applied once, got %d", len(repo.appliedFields))
	}
	if repo.appliedFields[0].Email == nil || *repo.appliedFields[0].Email != "maria@new.example.com" {
		t.Fatalf("expected refreshed email applied, got %v", repo.appliedFields[0].Email)
	}
}
