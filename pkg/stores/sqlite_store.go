package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is the storage format for all timestamps. Values are written in
// UTC so lexicographic comparison in SQL matches chronological order.
const timeLayout = "2006-01-02 15:04:05"

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded schema files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Handle returns the pooled connection for non-transactional reads.
func (s *SQLiteStore) Handle() Querier {
	return s.db
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// Accounts

// CreateAccount inserts a new account row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, q Querier, account *Account) error {
	query := `
		INSERT INTO account (name, number, notes, active, third_party)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		account.Name,
		account.Number,
		account.Notes,
		account.Active,
		account.ThirdParty,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account ID: %w", err)
	}

	account.ID = id
	return nil
}

// GetAccountByName returns the first account with the given name, or
// (nil, nil) when no such account exists.
func (s *SQLiteStore) GetAccountByName(ctx context.Context, q Querier, name string) (*Account, error) {
	query := `
		SELECT id, name, number, notes, active, third_party
		FROM account
		WHERE name = ?
		ORDER BY id
		LIMIT 1
	`

	account := &Account{}
	err := q.QueryRowContext(ctx, query, name).Scan(
		&account.ID,
		&account.Name,
		&account.Number,
		&account.Notes,
		&account.Active,
		&account.ThirdParty,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// ListAccounts returns all accounts ordered by name.
func (s *SQLiteStore) ListAccounts(ctx context.Context, q Querier) ([]*Account, error) {
	query := `
		SELECT id, name, number, notes, active, third_party
		FROM account
		ORDER BY name
	`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*Account{}
	for rows.Next() {
		account := &Account{}
		err := rows.Scan(
			&account.ID,
			&account.Name,
			&account.Number,
			&account.Notes,
			&account.Active,
			&account.ThirdParty,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Technologies

// CreateTechnology inserts a new technology row.
func (s *SQLiteStore) CreateTechnology(ctx context.Context, q Querier, tech *Technology) error {
	query := `INSERT INTO technology (name) VALUES (?)`

	result, err := q.ExecContext(ctx, query, tech.Name)
	if err != nil {
		return fmt.Errorf("failed to create technology: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get technology ID: %w", err)
	}

	tech.ID = id
	return nil
}

// GetTechnologyByName returns the first technology with the given name, or
// (nil, nil) when no such technology exists.
func (s *SQLiteStore) GetTechnologyByName(ctx context.Context, q Querier, name string) (*Technology, error) {
	query := `SELECT id, name FROM technology WHERE name = ? ORDER BY id LIMIT 1`

	tech := &Technology{}
	err := q.QueryRowContext(ctx, query, name).Scan(&tech.ID, &tech.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get technology: %w", err)
	}

	return tech, nil
}

// Items

const itemColumns = `
	item.id, item.tech_id, item.account_id, item.region, item.name, item.arn,
	item.latest_revision_complete_hash, item.latest_revision_durable_hash,
	item.latest_revision_id
`

func scanItem(rows *sql.Rows) (*Item, error) {
	item := &Item{}
	err := rows.Scan(
		&item.ID,
		&item.TechID,
		&item.AccountID,
		&item.Region,
		&item.Name,
		&item.ARN,
		&item.LatestCompleteHash,
		&item.LatestDurableHash,
		&item.LatestRevisionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return item, nil
}

// FindItems returns every item matching the full identity tuple. More than
// one row signals a duplicate created by the lookup-then-create race; the
// caller decides how to surface that.
func (s *SQLiteStore) FindItems(ctx context.Context, q Querier, tech, account, region, name string) ([]*Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM item
		JOIN technology ON item.tech_id = technology.id
		JOIN account ON item.account_id = account.id
		WHERE technology.name = ?
		  AND account.name = ?
		  AND item.region = ?
		  AND item.name = ?
		ORDER BY item.id
	`

	rows, err := q.QueryContext(ctx, query, tech, account, region, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find items: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

// CreateItem inserts a new item row. A duplicate ARN fails the insert with
// the driver's constraint error, surfaced as-is.
func (s *SQLiteStore) CreateItem(ctx context.Context, q Querier, item *Item) error {
	query := `
		INSERT INTO item (
			tech_id, account_id, region, name, arn,
			latest_revision_complete_hash, latest_revision_durable_hash, latest_revision_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		item.TechID,
		item.AccountID,
		item.Region,
		item.Name,
		item.ARN,
		item.LatestCompleteHash,
		item.LatestDurableHash,
		item.LatestRevisionID,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get item ID: %w", err)
	}

	item.ID = id
	return nil
}

// UpdateItem persists the mutable fields of an item (ARN and hashes).
func (s *SQLiteStore) UpdateItem(ctx context.Context, q Querier, item *Item) error {
	query := `
		UPDATE item
		SET arn = ?, latest_revision_complete_hash = ?, latest_revision_durable_hash = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		item.ARN,
		item.LatestCompleteHash,
		item.LatestDurableHash,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item not found: %d", item.ID)
	}

	return nil
}

// SetLatestRevision points the item at its most recent revision.
func (s *SQLiteStore) SetLatestRevision(ctx context.Context, q Querier, itemID, revisionID int64) error {
	query := `UPDATE item SET latest_revision_id = ? WHERE id = ?`

	result, err := q.ExecContext(ctx, query, revisionID, itemID)
	if err != nil {
		return fmt.Errorf("failed to set latest revision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item not found: %d", itemID)
	}

	return nil
}

// ListItemsFiltered returns items matching the filter. Empty filter fields
// match everything.
func (s *SQLiteStore) ListItemsFiltered(ctx context.Context, q Querier, filter ItemFilter) ([]*Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM item
		JOIN technology ON item.tech_id = technology.id
		JOIN account ON item.account_id = account.id
		WHERE (? = '' OR technology.name = ?)
		  AND (? = '' OR account.name = ?)
		  AND (? = '' OR item.region = ?)
		  AND (? = '' OR item.name = ?)
		ORDER BY item.id
	`

	rows, err := q.QueryContext(ctx, query,
		filter.Tech, filter.Tech,
		filter.Account, filter.Account,
		filter.Region, filter.Region,
		filter.Name, filter.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

// Revisions

// InsertRevision appends a new revision. The revision ID is only known after
// the insert completes, which is what forces the caller's two-step write of
// the item's latest-revision pointer.
func (s *SQLiteStore) InsertRevision(ctx context.Context, q Querier, rev *Revision) error {
	query := `
		INSERT INTO item_revision (item_id, active, config, date_created, date_last_ephemeral_change)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		rev.ItemID,
		rev.Active,
		rev.Config,
		formatTime(rev.DateCreated),
		formatTimePtr(rev.DateLastEphemeralChange),
	)
	if err != nil {
		return fmt.Errorf("failed to insert revision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get revision ID: %w", err)
	}

	rev.ID = id
	return nil
}

// UpdateRevisionConfig overwrites the config of an existing revision in
// place and stamps the last ephemeral change. Used only for the most recent
// revision of an item when a change is classified as ephemeral.
func (s *SQLiteStore) UpdateRevisionConfig(ctx context.Context, q Querier, revisionID int64, config string, touched time.Time) error {
	query := `
		UPDATE item_revision
		SET config = ?, date_last_ephemeral_change = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query, config, formatTime(touched), revisionID)
	if err != nil {
		return fmt.Errorf("failed to update revision config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("revision not found: %d", revisionID)
	}

	return nil
}

const revisionColumns = `id, item_id, active, config, date_created, date_last_ephemeral_change`

func scanRevision(scan func(dest ...any) error) (*Revision, error) {
	rev := &Revision{}
	var created string
	var touched *string
	err := scan(
		&rev.ID,
		&rev.ItemID,
		&rev.Active,
		&rev.Config,
		&created,
		&touched,
	)
	if err != nil {
		return nil, err
	}

	rev.DateCreated, err = parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse revision date: %w", err)
	}
	rev.DateLastEphemeralChange, err = parseTimePtr(touched)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral change date: %w", err)
	}

	return rev, nil
}

// GetRevision returns the revision with the given ID, or (nil, nil) when it
// does not exist.
func (s *SQLiteStore) GetRevision(ctx context.Context, q Querier, id int64) (*Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM item_revision WHERE id = ?`

	row := q.QueryRowContext(ctx, query, id)
	rev, err := scanRevision(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}

	return rev, nil
}

// GetLatestRevision returns the most recently created revision for an item,
// or (nil, nil) when the item has no revisions.
func (s *SQLiteStore) GetLatestRevision(ctx context.Context, q Querier, itemID int64) (*Revision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM item_revision
		WHERE item_id = ?
		ORDER BY date_created DESC, id DESC
		LIMIT 1
	`

	row := q.QueryRowContext(ctx, query, itemID)
	rev, err := scanRevision(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest revision: %w", err)
	}

	return rev, nil
}

// ListRevisionsByItem returns the revision history for an item, newest first.
func (s *SQLiteStore) ListRevisionsByItem(ctx context.Context, q Querier, itemID int64) ([]*Revision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM item_revision
		WHERE item_id = ?
		ORDER BY date_created DESC, id DESC
	`

	rows, err := q.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	revisions := []*Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	return revisions, nil
}

// Issues

// ListIssuesByItem returns all audit issues currently attached to an item.
func (s *SQLiteStore) ListIssuesByItem(ctx context.Context, q Querier, itemID int64) ([]*Issue, error) {
	query := `
		SELECT id, item_id, score, issue_type, notes, justified, justification, justified_date
		FROM item_issue
		WHERE item_id = ?
		ORDER BY id
	`

	rows, err := q.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	issues := []*Issue{}
	for rows.Next() {
		issue := &Issue{}
		var justifiedDate *string
		err := rows.Scan(
			&issue.ID,
			&issue.ItemID,
			&issue.Score,
			&issue.IssueType,
			&issue.Notes,
			&issue.Justified,
			&issue.Justification,
			&justifiedDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issue.JustifiedDate, err = parseTimePtr(justifiedDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse justified date: %w", err)
		}
		issues = append(issues, issue)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}

	return issues, nil
}

// InsertIssue attaches a new audit issue to an item.
func (s *SQLiteStore) InsertIssue(ctx context.Context, q Querier, issue *Issue) error {
	query := `
		INSERT INTO item_issue (item_id, score, issue_type, notes, justified, justification, justified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		issue.ItemID,
		issue.Score,
		issue.IssueType,
		issue.Notes,
		issue.Justified,
		issue.Justification,
		formatTimePtr(issue.JustifiedDate),
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get issue ID: %w", err)
	}

	issue.ID = id
	return nil
}

// DeleteIssue removes an audit issue by row ID.
func (s *SQLiteStore) DeleteIssue(ctx context.Context, q Querier, id int64) error {
	query := `DELETE FROM item_issue WHERE id = ?`

	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("issue not found: %d", id)
	}

	return nil
}

// Exception ledger

// InsertException appends a diagnostic record to the exception ledger.
func (s *SQLiteStore) InsertException(ctx context.Context, q Querier, rec *ExceptionRecord) error {
	query := `
		INSERT INTO exception_log (
			id, source, occurred, ttl, type, message, stacktrace,
			region, tech_id, account_id, item_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		rec.ID,
		rec.Source,
		formatTime(rec.Occurred),
		formatTime(rec.TTL),
		rec.Type,
		rec.Message,
		rec.Stacktrace,
		rec.Region,
		rec.TechID,
		rec.AccountID,
		rec.ItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exception record: %w", err)
	}

	return nil
}

// ListExceptions returns exception records, newest first.
func (s *SQLiteStore) ListExceptions(ctx context.Context, q Querier, limit, offset int) ([]*ExceptionRecord, error) {
	query := `
		SELECT id, source, occurred, ttl, type, message, stacktrace,
		       region, tech_id, account_id, item_id
		FROM exception_log
		ORDER BY occurred DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := q.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exception records: %w", err)
	}
	defer rows.Close()

	records := []*ExceptionRecord{}
	for rows.Next() {
		rec := &ExceptionRecord{}
		var occurred, ttl string
		err := rows.Scan(
			&rec.ID,
			&rec.Source,
			&occurred,
			&ttl,
			&rec.Type,
			&rec.Message,
			&rec.Stacktrace,
			&rec.Region,
			&rec.TechID,
			&rec.AccountID,
			&rec.ItemID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exception record: %w", err)
		}
		if rec.Occurred, err = parseTime(occurred); err != nil {
			return nil, fmt.Errorf("failed to parse occurred time: %w", err)
		}
		if rec.TTL, err = parseTime(ttl); err != nil {
			return nil, fmt.Errorf("failed to parse ttl: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exception records: %w", err)
	}

	return records, nil
}

// DeleteExpiredExceptions purges every record whose TTL is at or before now
// and returns the number of rows removed.
func (s *SQLiteStore) DeleteExpiredExceptions(ctx context.Context, q Querier, now time.Time) (int64, error) {
	query := `DELETE FROM exception_log WHERE ttl <= ?`

	result, err := q.ExecContext(ctx, query, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired exception records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Timestamp helpers. All timestamps go through these so the stored format
// stays uniform regardless of driver behavior.

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
