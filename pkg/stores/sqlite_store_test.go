package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// A single connection: every pooled connection to :memory: would
	// otherwise see its own empty database.
	store, err := NewSQLiteStore(Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// seedItem creates an account, technology, and item for revision tests
func seedItem(t *testing.T, store *SQLiteStore) *Item {
	t.Helper()
	ctx := context.Background()
	q := store.Handle()

	account := &Account{Name: "production", Number: "123456789012", Active: true}
	if err := store.CreateAccount(ctx, q, account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	tech := &Technology{Name: "securitygroup"}
	if err := store.CreateTechnology(ctx, q, tech); err != nil {
		t.Fatalf("failed to create technology: %v", err)
	}

	item := &Item{
		TechID:    tech.ID,
		AccountID: account.ID,
		Region:    "us-east-1",
		Name:      "web-sg",
	}
	if err := store.CreateItem(ctx, q, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	return item
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"account", "technology", "item", "item_revision", "item_issue", "exception_log"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestAccountCRUD tests account operations
func TestAccountCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()

	notes := "primary account"
	account := &Account{
		Name:       "production",
		Number:     "123456789012",
		Notes:      &notes,
		Active:     true,
		ThirdParty: false,
	}

	if err := store.CreateAccount(ctx, q, account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	if account.ID == 0 {
		t.Error("expected account ID to be set after insert")
	}

	retrieved, err := store.GetAccountByName(ctx, q, "production")
	if err != nil {
		t.Fatalf("failed to get account: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected account, got nil")
	}
	if retrieved.Number != account.Number {
		t.Errorf("expected number %s, got %s", account.Number, retrieved.Number)
	}
	if retrieved.Notes == nil || *retrieved.Notes != notes {
		t.Errorf("expected notes %q, got %v", notes, retrieved.Notes)
	}
	if !retrieved.Active {
		t.Error("expected account to be active")
	}

	// Missing accounts are (nil, nil), not an error
	missing, err := store.GetAccountByName(ctx, q, "staging")
	if err != nil {
		t.Fatalf("unexpected error for missing account: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing account, got %+v", missing)
	}

	accounts, err := store.ListAccounts(ctx, q)
	if err != nil {
		t.Fatalf("failed to list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("expected 1 account, got %d", len(accounts))
	}
}

// TestTechnologyCRUD tests technology operations
func TestTechnologyCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()

	tech := &Technology{Name: "iamuser"}
	if err := store.CreateTechnology(ctx, q, tech); err != nil {
		t.Fatalf("failed to create technology: %v", err)
	}
	if tech.ID == 0 {
		t.Error("expected technology ID to be set after insert")
	}

	retrieved, err := store.GetTechnologyByName(ctx, q, "iamuser")
	if err != nil {
		t.Fatalf("failed to get technology: %v", err)
	}
	if retrieved == nil || retrieved.ID != tech.ID {
		t.Errorf("expected technology %d, got %+v", tech.ID, retrieved)
	}

	missing, err := store.GetTechnologyByName(ctx, q, "elb")
	if err != nil {
		t.Fatalf("unexpected error for missing technology: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing technology, got %+v", missing)
	}
}

// TestItemCRUD tests item operations
func TestItemCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()
	item := seedItem(t, store)

	if item.ID == 0 {
		t.Error("expected item ID to be set after insert")
	}

	found, err := store.FindItems(ctx, q, "securitygroup", "production", "us-east-1", "web-sg")
	if err != nil {
		t.Fatalf("failed to find items: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 item, got %d", len(found))
	}
	if found[0].ID != item.ID {
		t.Errorf("expected item %d, got %d", item.ID, found[0].ID)
	}

	// Identity uniqueness is not enforced by the schema: a second insert
	// of the same tuple succeeds and FindItems returns both rows.
	dup := &Item{
		TechID:    item.TechID,
		AccountID: item.AccountID,
		Region:    item.Region,
		Name:      item.Name,
	}
	if err := store.CreateItem(ctx, q, dup); err != nil {
		t.Fatalf("duplicate identity insert should succeed: %v", err)
	}
	found, err = store.FindItems(ctx, q, "securitygroup", "production", "us-east-1", "web-sg")
	if err != nil {
		t.Fatalf("failed to find items: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("expected 2 items after duplicate insert, got %d", len(found))
	}

	arn := "arn:aws:ec2:us-east-1:123456789012:security-group/sg-1234"
	item.ARN = &arn
	item.LatestCompleteHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	item.LatestDurableHash = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	if err := store.UpdateItem(ctx, q, item); err != nil {
		t.Fatalf("failed to update item: %v", err)
	}

	found, err = store.FindItems(ctx, q, "securitygroup", "production", "us-east-1", "web-sg")
	if err != nil {
		t.Fatalf("failed to find items: %v", err)
	}
	var updated *Item
	for _, f := range found {
		if f.ID == item.ID {
			updated = f
		}
	}
	if updated == nil {
		t.Fatal("updated item not found")
	}
	if updated.ARN == nil || *updated.ARN != arn {
		t.Errorf("expected ARN %s, got %v", arn, updated.ARN)
	}
	if updated.LatestCompleteHash != item.LatestCompleteHash {
		t.Errorf("expected complete hash %s, got %s", item.LatestCompleteHash, updated.LatestCompleteHash)
	}
}

// TestItemARNUniqueness tests the ARN unique constraint
func TestItemARNUniqueness(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()
	item := seedItem(t, store)

	arn := "arn:aws:ec2:us-east-1:123456789012:security-group/sg-1234"
	first := &Item{TechID: item.TechID, AccountID: item.AccountID, Region: "us-east-1", Name: "a", ARN: &arn}
	if err := store.CreateItem(ctx, q, first); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	second := &Item{TechID: item.TechID, AccountID: item.AccountID, Region: "us-east-1", Name: "b", ARN: &arn}
	if err := store.CreateItem(ctx, q, second); err == nil {
		t.Error("expected unique constraint violation for duplicate ARN")
	}
}

// TestListItemsFiltered tests the filtered item listing
func TestListItemsFiltered(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()
	item := seedItem(t, store)

	other := &Item{TechID: item.TechID, AccountID: item.AccountID, Region: "eu-west-1", Name: "db-sg"}
	if err := store.CreateItem(ctx, q, other); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	// No filter matches everything
	all, err := store.ListItemsFiltered(ctx, q, ItemFilter{})
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 items, got %d", len(all))
	}

	// Region filter
	east, err := store.ListItemsFiltered(ctx, q, ItemFilter{Region: "us-east-1"})
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(east) != 1 || east[0].Name != "web-sg" {
		t.Errorf("expected only web-sg in us-east-1, got %d items", len(east))
	}

	// Combined filter with no matches
	none, err := store.ListItemsFiltered(ctx, q, ItemFilter{Tech: "securitygroup", Name: "missing"})
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no items, got %d", len(none))
	}
}

// TestRevisionLifecycle tests revision insert, latest lookup, and in-place update
func TestRevisionLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()
	item := seedItem(t, store)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &Revision{ItemID: item.ID, Active: true, Config: `{"v":1}`, DateCreated: base}
	if err := store.InsertRevision(ctx, q, first); err != nil {
		t.Fatalf("failed to insert revision: %v", err)
	}
	second := &Revision{ItemID: item.ID, Active: true, Config: `{"v":2}`, DateCreated: base.Add(time.Minute)}
	if err := store.InsertRevision(ctx, q, second); err != nil {
		t.Fatalf("failed to insert revision: %v", err)
	}

	latest, err := store.GetLatestRevision(ctx, q, item.ID)
	if err != nil {
		t.Fatalf("failed to get latest revision: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("expected revision %d as latest, got %+v", second.ID, latest)
	}
	if latest.Config != `{"v":2}` {
		t.Errorf("expected config {\"v\":2}, got %s", latest.Config)
	}

	// In-place ephemeral overwrite
	touched := base.Add(2 * time.Minute)
	if err := store.UpdateRevisionConfig(ctx, q, second.ID, `{"v":3}`, touched); err != nil {
		t.Fatalf("failed to update revision config: %v", err)
	}

	updated, err := store.GetRevision(ctx, q, second.ID)
	if err != nil {
		t.Fatalf("failed to get revision: %v", err)
	}
	if updated.Config != `{"v":3}` {
		t.Errorf("expected overwritten config, got %s", updated.Config)
	}
	if updated.DateLastEphemeralChange == nil || !updated.DateLastEphemeralChange.Equal(touched) {
		t.Errorf("expected ephemeral change timestamp %v, got %v", touched, updated.DateLastEphemeralChange)
	}

	// History is newest first
	revisions, err := store.ListRevisionsByItem(ctx, q, item.ID)
	if err != nil {
		t.Fatalf("failed to list revisions: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revisions))
	}
	if revisions[0].ID != second.ID || revisions[1].ID != first.ID {
		t.Errorf("expected newest-first order, got %d then %d", revisions[0].ID, revisions[1].ID)
	}

	// Items without revisions have no latest
	empty := &Item{TechID: item.TechID, AccountID: item.AccountID, Region: "us-east-1", Name: "bare"}
	if err := store.CreateItem(ctx, q, empty); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	missing, err := store.GetLatestRevision(ctx, q, empty.ID)
	if err != nil {
		t.Fatalf("unexpected error for item without revisions: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil latest revision, got %+v", missing)
	}
}

// TestSetLatestRevision tests the latest-revision pointer update
func TestSetLatestRevision(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()
	item := seedItem(t, store)

	rev := &Revision{ItemID: item.ID, Active: true, Config: `{}`, DateCreated: time.Now().UTC()}
	if err := store.InsertRevision(ctx, q, rev); err != nil {
		t.Fatalf("failed to insert revision: %v", err)
	}

	if err := store.SetLatestRevision(ctx, q, item.ID, rev.ID); err != nil {
		t.Fatalf("failed to set latest revision: %v", err)
	}

	found, err := store.FindItems(ctx, q, "securitygroup", "production", "us-east-1", "web-sg")
	if err != nil {
		t.Fatalf("failed to find items: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 item, got %d", len(found))
	}
	if found[0].LatestRevisionID == nil || *found[0].LatestRevisionID != rev.ID {
		t.Errorf("expected latest revision pointer %d, got %v", rev.ID, found[0].LatestRevisionID)
	}
}

// TestIssueCRUD tests issue operations
func TestIssueCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()
	item := seedItem(t, store)

	issue := &Issue{
		ItemID:    item.ID,
		Score:     7,
		IssueType: "open_port",
		Notes:     "port 22 open to 0.0.0.0/0",
	}
	if err := store.InsertIssue(ctx, q, issue); err != nil {
		t.Fatalf("failed to insert issue: %v", err)
	}
	if issue.ID == 0 {
		t.Error("expected issue ID to be set after insert")
	}

	issues, err := store.ListIssuesByItem(ctx, q, item.ID)
	if err != nil {
		t.Fatalf("failed to list issues: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Key() != "open_port/port 22 open to 0.0.0.0/0" {
		t.Errorf("unexpected issue key %q", issues[0].Key())
	}

	if err := store.DeleteIssue(ctx, q, issue.ID); err != nil {
		t.Fatalf("failed to delete issue: %v", err)
	}
	issues, err = store.ListIssuesByItem(ctx, q, item.ID)
	if err != nil {
		t.Fatalf("failed to list issues: %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues after delete, got %d", len(issues))
	}
}

// TestExceptionLedger tests exception insert, listing, and TTL purge
func TestExceptionLedger(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	q := store.Handle()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	region := "us-east-1"

	expired := &ExceptionRecord{
		ID:         "11111111-1111-1111-1111-111111111111",
		Source:     "watcher",
		Occurred:   now.Add(-20 * 24 * time.Hour),
		TTL:        now.Add(-10 * 24 * time.Hour),
		Type:       "TimeoutError",
		Message:    "listing timed out",
		Stacktrace: "stack",
		Region:     &region,
	}
	fresh := &ExceptionRecord{
		ID:         "22222222-2222-2222-2222-222222222222",
		Source:     "auditor",
		Occurred:   now,
		TTL:        now.Add(10 * 24 * time.Hour),
		Type:       "ValueError",
		Message:    "bad payload",
		Stacktrace: "stack",
	}

	for _, rec := range []*ExceptionRecord{expired, fresh} {
		if err := store.InsertException(ctx, q, rec); err != nil {
			t.Fatalf("failed to insert exception: %v", err)
		}
	}

	records, err := store.ListExceptions(ctx, q, 10, 0)
	if err != nil {
		t.Fatalf("failed to list exceptions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 exceptions, got %d", len(records))
	}
	// Newest first
	if records[0].ID != fresh.ID {
		t.Errorf("expected newest exception first, got %s", records[0].ID)
	}
	if records[0].Region != nil {
		t.Errorf("expected nil region, got %v", *records[0].Region)
	}
	if records[1].Region == nil || *records[1].Region != region {
		t.Errorf("expected region %s, got %v", region, records[1].Region)
	}

	deleted, err := store.DeleteExpiredExceptions(ctx, q, now)
	if err != nil {
		t.Fatalf("failed to purge exceptions: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 purged exception, got %d", deleted)
	}

	records, err = store.ListExceptions(ctx, q, 10, 0)
	if err != nil {
		t.Fatalf("failed to list exceptions: %v", err)
	}
	if len(records) != 1 || records[0].ID != fresh.ID {
		t.Errorf("expected only the fresh exception to remain")
	}
}

// TestTransactionRollback tests that rolled-back writes are not visible
func TestTransactionRollback(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	account := &Account{Name: "ephemeral", Number: "999999999999", Active: true}
	if err := store.CreateAccount(ctx, tx, account); err != nil {
		t.Fatalf("failed to create account in transaction: %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	retrieved, err := store.GetAccountByName(ctx, store.Handle(), "ephemeral")
	if err != nil {
		t.Fatalf("failed to get account: %v", err)
	}
	if retrieved != nil {
		t.Error("rolled-back account should not be visible")
	}
}
