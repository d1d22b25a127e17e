package stores

import (
	"context"
	"database/sql"
	"time"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Every row-level operation takes an explicit Querier so the caller decides
// the transaction scope; there is no package-level session state.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Account represents a logical cloud account. Accounts are administered
// externally; the engine only reads them.
type Account struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Number     string  `json:"number"` // kept as text: account numbers may carry leading zeros
	Notes      *string `json:"notes,omitempty"`
	Active     bool    `json:"active"`
	ThirdParty bool    `json:"third_party"`
}

// Technology is a resource kind ("securitygroup", "iamuser", ...). Rows are
// created lazily the first time a kind is seen.
type Technology struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Item is the persistent identity of one real-world resource, unique per
// (technology, account, region, name). Uniqueness is enforced only by
// lookup-before-create; see FindItems.
type Item struct {
	ID                 int64   `json:"id"`
	TechID             int64   `json:"tech_id"`
	AccountID          int64   `json:"account_id"`
	Region             string  `json:"region"`
	Name               string  `json:"name"`
	ARN                *string `json:"arn,omitempty"` // globally unique when present
	LatestCompleteHash string  `json:"latest_revision_complete_hash"`
	LatestDurableHash  string  `json:"latest_revision_durable_hash"`
	LatestRevisionID   *int64  `json:"latest_revision_id,omitempty"`
}

// Revision is one recorded configuration snapshot for an Item. Revisions are
// immutable once created, except that the most recent revision's config may
// be overwritten in place for an ephemeral-only change.
type Revision struct {
	ID                      int64      `json:"id"`
	ItemID                  int64      `json:"item_id"`
	Active                  bool       `json:"active"`
	Config                  string     `json:"config"` // JSON blob
	DateCreated             time.Time  `json:"date_created"`
	DateLastEphemeralChange *time.Time `json:"date_last_ephemeral_change,omitempty"`
}

// Issue is an audit finding attached to an Item. For reconciliation the
// identity of an issue is the (IssueType, Notes) pair, not its row ID.
type Issue struct {
	ID            int64      `json:"id"`
	ItemID        int64      `json:"item_id"`
	Score         int        `json:"score"`
	IssueType     string     `json:"issue"`
	Notes         string     `json:"notes"`
	Justified     bool       `json:"justified"`
	Justification *string    `json:"justification,omitempty"`
	JustifiedDate *time.Time `json:"justified_date,omitempty"`
}

// Key returns the reconciliation identity of the issue.
func (i *Issue) Key() string {
	return i.IssueType + "/" + i.Notes
}

// ExceptionRecord is an append-only diagnostic entry with a TTL after which
// it is eligible for purge.
type ExceptionRecord struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Occurred   time.Time `json:"occurred"`
	TTL        time.Time `json:"ttl"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Stacktrace string    `json:"stacktrace"`
	Region     *string   `json:"region,omitempty"`
	TechID     *int64    `json:"tech_id,omitempty"`
	AccountID  *int64    `json:"account_id,omitempty"`
	ItemID     *int64    `json:"item_id,omitempty"`
}

// ItemFilter narrows ListItemsFiltered. Empty fields match everything.
type ItemFilter struct {
	Tech    string
	Account string
	Region  string
	Name    string
}

// Store defines the persistence layer consumed by the engine.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Transaction support. Handle returns the pooled connection for
	// reads that do not need a transaction.
	Handle() Querier
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Accounts (administered externally, read by the engine)
	CreateAccount(ctx context.Context, q Querier, account *Account) error
	GetAccountByName(ctx context.Context, q Querier, name string) (*Account, error)
	ListAccounts(ctx context.Context, q Querier) ([]*Account, error)

	// Technologies (created lazily on first sight of a kind)
	CreateTechnology(ctx context.Context, q Querier, tech *Technology) error
	GetTechnologyByName(ctx context.Context, q Querier, name string) (*Technology, error)

	// Items
	FindItems(ctx context.Context, q Querier, tech, account, region, name string) ([]*Item, error)
	CreateItem(ctx context.Context, q Querier, item *Item) error
	UpdateItem(ctx context.Context, q Querier, item *Item) error
	SetLatestRevision(ctx context.Context, q Querier, itemID, revisionID int64) error
	ListItemsFiltered(ctx context.Context, q Querier, filter ItemFilter) ([]*Item, error)

	// Revisions
	InsertRevision(ctx context.Context, q Querier, rev *Revision) error
	UpdateRevisionConfig(ctx context.Context, q Querier, revisionID int64, config string, touched time.Time) error
	GetRevision(ctx context.Context, q Querier, id int64) (*Revision, error)
	GetLatestRevision(ctx context.Context, q Querier, itemID int64) (*Revision, error)
	ListRevisionsByItem(ctx context.Context, q Querier, itemID int64) ([]*Revision, error)

	// Issues
	ListIssuesByItem(ctx context.Context, q Querier, itemID int64) ([]*Issue, error)
	InsertIssue(ctx context.Context, q Querier, issue *Issue) error
	DeleteIssue(ctx context.Context, q Querier, id int64) error

	// Exception ledger
	InsertException(ctx context.Context, q Querier, rec *ExceptionRecord) error
	ListExceptions(ctx context.Context, q Querier, limit, offset int) ([]*ExceptionRecord, error)
	DeleteExpiredExceptions(ctx context.Context, q Querier, now time.Time) (int64, error)
}
