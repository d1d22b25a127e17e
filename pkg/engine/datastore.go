package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/driftline/pkg/confhash"
	"github.com/driftline/driftline/pkg/stores"
	"github.com/driftline/driftline/pkg/telemetry"
)

// defaultExceptionTTL is how long an exception record is retained when the
// caller does not supply a TTL.
const defaultExceptionTTL = 10 * 24 * time.Hour

// exceptionMessageLimit caps the stored message length.
const exceptionMessageLimit = 512

// Datastore is the configuration revision and change-detection engine. It is
// safe for concurrent use; every operation acquires its own transaction
// scope from the store.
type Datastore struct {
	store          stores.Store
	log            *telemetry.Logger
	metrics        *telemetry.Metrics
	tracer         *telemetry.Tracer
	retry          RetryPolicy
	extraEphemeral map[string][]string
	now            func() time.Time
}

// Options configures a Datastore. The zero value is usable: logging is
// discarded, metrics are no-ops, tracing is off, and the default retry
// policy applies.
type Options struct {
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Retry   RetryPolicy

	// ExtraEphemeralPaths adds configured ephemeral paths per technology
	// kind, merged after the built-in table.
	ExtraEphemeralPaths map[string][]string
}

// New creates a Datastore on top of the given store.
func New(store stores.Store, opts Options) *Datastore {
	log := opts.Logger
	if log == nil {
		log = telemetry.NopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	return &Datastore{
		store:          store,
		log:            log.WithComponent("engine"),
		metrics:        metrics,
		tracer:         opts.Tracer,
		retry:          retry,
		extraEphemeral: opts.ExtraEphemeralPaths,
		now:            time.Now,
	}
}

// StoreInput is one configuration snapshot supplied by a watcher.
type StoreInput struct {
	Kind    string
	Region  string
	Account string
	Name    string

	// Active records whether the resource still exists in the cloud.
	Active bool

	// Config is the raw configuration payload.
	Config map[string]any

	// ARN, when non-empty, is set on the item. It is expected to be
	// globally unique; a collision surfaces as a constraint violation.
	ARN string

	// NewIssues is the full set of audit issues for this snapshot. Absent
	// and empty are treated identically.
	NewIssues []*stores.Issue

	// Ephemeral marks a change confined to ephemeral paths: the latest
	// revision is overwritten in place instead of appending a new one.
	Ephemeral bool
}

// Filter narrows GetAllFiltered. Empty fields match everything.
type Filter struct {
	Kind            string
	Account         string
	Region          string
	Name            string
	IncludeInactive bool
}

// ItemRevision pairs an item with its latest revision.
type ItemRevision struct {
	Item     *stores.Item
	Revision *stores.Revision
}

// Store records a configuration snapshot. The item is created lazily on
// first sight of its identity tuple. The write happens in two steps: the
// item, revision, and issue changes commit in one transaction, then the
// item's latest-revision pointer is written in a second one (the revision ID
// is only known after the first insert). Between the two commits a reader
// can observe a pointer that lags by exactly one revision; readers treat
// that as "no data yet", never as corruption.
func (d *Datastore) Store(ctx context.Context, in StoreInput) error {
	if d.tracer != nil {
		var span *telemetry.Span
		ctx, span = d.tracer.StartStoreSpan(ctx, in.Kind, in.Region, in.Account, in.Name)
		defer span.End()
	}
	timer := time.Now()

	configJSON, err := json.Marshal(in.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	completeHash, err := confhash.HashConfig(in.Config)
	if err != nil {
		return fmt.Errorf("failed to hash config: %w", err)
	}
	durableHash, err := confhash.DurableHash(in.Config, d.EphemeralPaths(in.Kind))
	if err != nil {
		return fmt.Errorf("failed to compute durable hash: %w", err)
	}

	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	item, created, err := d.resolveItem(ctx, tx, in.Kind, in.Region, in.Account, in.Name)
	if err != nil {
		return err
	}

	if in.ARN != "" {
		arn := in.ARN
		item.ARN = &arn
	}
	item.LatestCompleteHash = completeHash
	item.LatestDurableHash = durableHash

	if created {
		if err := d.store.CreateItem(ctx, tx, item); err != nil {
			return classifyWrite(err)
		}
		d.log.WithKind(in.Kind).WithAccount(in.Account).
			Infof("created item %s in region %s", in.Name, in.Region)
	} else {
		if err := d.store.UpdateItem(ctx, tx, item); err != nil {
			return classifyWrite(err)
		}
	}

	if in.Ephemeral {
		latest, err := d.store.GetLatestRevision(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if latest == nil {
			return NewNotFoundError(fmt.Sprintf(
				"no revision to update for ephemeral change on item %s", in.Name))
		}
		if err := d.store.UpdateRevisionConfig(ctx, tx, latest.ID, string(configJSON), d.now().UTC()); err != nil {
			return err
		}
		d.metrics.RecordEphemeralUpdate(in.Kind)
	} else {
		rev := &stores.Revision{
			ItemID:      item.ID,
			Active:      in.Active,
			Config:      string(configJSON),
			DateCreated: d.now().UTC(),
		}
		if err := d.store.InsertRevision(ctx, tx, rev); err != nil {
			return err
		}
		d.metrics.RecordRevisionCreated(in.Kind)
	}

	added, removed, err := d.reconcileIssues(ctx, tx, item.ID, in.NewIssues)
	if err != nil {
		return err
	}
	d.metrics.RecordIssueChanges(in.Kind, added, removed)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	committed = true

	if err := d.setLatestRevision(ctx, item.ID); err != nil {
		return err
	}

	d.metrics.RecordStore(in.Kind, time.Since(timer))
	return nil
}

// setLatestRevision is the second step of Store: re-read the newest revision
// and point the item at it. Runs outside the main transaction because the
// revision ID does not exist until that transaction commits.
func (d *Datastore) setLatestRevision(ctx context.Context, itemID int64) error {
	q := d.store.Handle()
	latest, err := d.store.GetLatestRevision(ctx, q, itemID)
	if err != nil {
		return err
	}
	if latest == nil {
		return NewNotFoundError(fmt.Sprintf("no revisions found for item %d", itemID))
	}
	return d.store.SetLatestRevision(ctx, q, itemID, latest.ID)
}

// resolveItem maps an identity tuple to its item. The account must already
// exist. Zero matches builds a new, unsaved item scaffold (creating the
// technology row if this kind has never been seen); more than one match
// means the lookup-before-create race produced a duplicate and the database
// needs cleanup.
func (d *Datastore) resolveItem(ctx context.Context, q stores.Querier, kind, region, account, name string) (*stores.Item, bool, error) {
	acct, err := d.store.GetAccountByName(ctx, q, account)
	if err != nil {
		return nil, false, err
	}
	if acct == nil {
		return nil, false, NewNotFoundError(fmt.Sprintf("account with name [%s] not found", account))
	}

	items, err := d.store.FindItems(ctx, q, kind, account, region, name)
	if err != nil {
		return nil, false, err
	}
	if len(items) > 1 {
		return nil, false, NewDataIntegrityError(fmt.Sprintf(
			"found multiple items for tech: %s region: %s account: %s and name: %s",
			kind, region, account, name))
	}
	if len(items) == 1 {
		return items[0], false, nil
	}

	tech, err := d.store.GetTechnologyByName(ctx, q, kind)
	if err != nil {
		return nil, false, err
	}
	if tech == nil {
		tech = &stores.Technology{Name: kind}
		if err := d.store.CreateTechnology(ctx, q, tech); err != nil {
			return nil, false, err
		}
		d.log.Infof("creating a new technology: %s - ID: %d", kind, tech.ID)
	}

	return &stores.Item{
		TechID:    tech.ID,
		AccountID: acct.ID,
		Region:    region,
		Name:      name,
	}, true, nil
}

// lookupItem is the read-side variant of resolveItem: it never creates
// anything and returns (nil, nil) when the item does not exist.
func (d *Datastore) lookupItem(ctx context.Context, q stores.Querier, kind, region, account, name string) (*stores.Item, error) {
	acct, err := d.store.GetAccountByName(ctx, q, account)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, NewNotFoundError(fmt.Sprintf("account with name [%s] not found", account))
	}

	items, err := d.store.FindItems(ctx, q, kind, account, region, name)
	if err != nil {
		return nil, err
	}
	if len(items) > 1 {
		return nil, NewDataIntegrityError(fmt.Sprintf(
			"found multiple items for tech: %s region: %s account: %s and name: %s",
			kind, region, account, name))
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// reconcileIssues diffs the stored issues for an item against the supplied
// set using the (issue type, notes) identity. New keys are inserted, missing
// keys are deleted, and surviving rows are left untouched even when other
// fields (score, justification) differ.
func (d *Datastore) reconcileIssues(ctx context.Context, q stores.Querier, itemID int64, newIssues []*stores.Issue) (added, removed int, err error) {
	current, err := d.store.ListIssuesByItem(ctx, q, itemID)
	if err != nil {
		return 0, 0, err
	}

	currentKeys := make(map[string]bool, len(current))
	for _, issue := range current {
		currentKeys[issue.Key()] = true
	}
	newKeys := make(map[string]bool, len(newIssues))
	for _, issue := range newIssues {
		newKeys[issue.Key()] = true
	}

	for _, issue := range newIssues {
		if currentKeys[issue.Key()] {
			continue
		}
		// Marking the key keeps a repeated (type, notes) pair in one
		// snapshot from inserting twice.
		currentKeys[issue.Key()] = true
		issue.ItemID = itemID
		if err := d.store.InsertIssue(ctx, q, issue); err != nil {
			return added, removed, err
		}
		added++
	}

	for _, issue := range current {
		if newKeys[issue.Key()] {
			continue
		}
		if err := d.store.DeleteIssue(ctx, q, issue.ID); err != nil {
			return added, removed, err
		}
		removed++
	}

	return added, removed, nil
}

// Get returns the revision history for an item, newest first. An unknown
// item yields an empty history; an unknown account is an error.
func (d *Datastore) Get(ctx context.Context, kind, region, account, name string) ([]*stores.Revision, error) {
	if d.tracer != nil {
		var span *telemetry.Span
		ctx, span = d.tracer.StartQuerySpan(ctx, "get")
		defer span.End()
	}

	q := d.store.Handle()
	item, err := d.lookupItem(ctx, q, kind, region, account, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return []*stores.Revision{}, nil
	}
	return d.store.ListRevisionsByItem(ctx, q, item.ID)
}

// GetAuditIssues returns the audit issues currently attached to an item.
func (d *Datastore) GetAuditIssues(ctx context.Context, kind, region, account, name string) ([]*stores.Issue, error) {
	if d.tracer != nil {
		var span *telemetry.Span
		ctx, span = d.tracer.StartQuerySpan(ctx, "get_audit_issues")
		defer span.End()
	}

	q := d.store.Handle()
	item, err := d.lookupItem(ctx, q, kind, region, account, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return []*stores.Issue{}, nil
	}
	return d.store.ListIssuesByItem(ctx, q, item.ID)
}

// GetAllFiltered returns every item matching the filter paired with its
// latest revision. Items with no latest-revision pointer are skipped (they
// may be mid-write; see Store). Inactive revisions are excluded unless
// IncludeInactive is set. The item listing is the only retried read path.
func (d *Datastore) GetAllFiltered(ctx context.Context, filter Filter) ([]ItemRevision, error) {
	if d.tracer != nil {
		var span *telemetry.Span
		ctx, span = d.tracer.StartQuerySpan(ctx, "get_all_filtered")
		defer span.End()
	}

	q := d.store.Handle()

	var items []*stores.Item
	err := d.retry.Do(ctx, func() error {
		var err error
		items, err = d.store.ListItemsFiltered(ctx, q, stores.ItemFilter{
			Tech:    filter.Kind,
			Account: filter.Account,
			Region:  filter.Region,
			Name:    filter.Name,
		})
		return err
	}, func(attempt int, err error) {
		d.metrics.RecordListingRetry()
		d.log.Warnf("database error listing items, sleeping before retry, attempt %d", attempt)
		d.log.WithError(err).Debug("listing failure detail")
	})
	if err != nil {
		return nil, err
	}

	results := []ItemRevision{}
	for _, item := range items {
		if item.LatestRevisionID == nil {
			d.log.Debugf("there are no revisions for item %d", item.ID)
			continue
		}
		rev, err := d.store.GetRevision(ctx, q, *item.LatestRevisionID)
		if err != nil {
			return nil, err
		}
		if rev == nil {
			// Stale pointer from the two-step write: no usable data yet.
			continue
		}
		if !rev.Active && !filter.IncludeInactive {
			continue
		}
		results = append(results, ItemRevision{Item: item, Revision: rev})
	}

	return results, nil
}

// RecordException appends a diagnostic record to the exception ledger.
// Best-effort: every failure is logged and swallowed so the caller's primary
// operation is never aborted by diagnostics. location is an ordered tuple of
// up to four elements: [kind, account name, region, item name]. The kind and
// account lookups must succeed or recording fails (and is logged).
func (d *Datastore) RecordException(ctx context.Context, source string, location []string, cause error, ttl *time.Time) {
	log := d.log.WithComponent("exceptions")
	log.Debugf("logging exception from %s with location %v to the database", source, location)

	occurred := d.now().UTC()
	expiry := occurred.Add(defaultExceptionTTL)
	if ttl != nil {
		expiry = ttl.UTC()
	}

	message := ""
	errType := "unknown"
	if cause != nil {
		message = cause.Error()
		if len(message) > exceptionMessageLimit {
			message = message[:exceptionMessageLimit]
		}
		errType = errorType(cause)
	}

	rec := &stores.ExceptionRecord{
		ID:         uuid.New().String(),
		Source:     source,
		Occurred:   occurred,
		TTL:        expiry,
		Type:       errType,
		Message:    message,
		Stacktrace: string(debug.Stack()),
	}

	q := d.store.Handle()
	if err := d.resolveExceptionLocation(ctx, q, rec, location); err != nil {
		log.WithError(err).Error("encountered error while logging exception to database")
		return
	}

	if err := d.store.InsertException(ctx, q, rec); err != nil {
		log.WithError(err).Error("encountered error while logging exception to database")
		return
	}

	d.metrics.RecordExceptionRecorded(source)
	log.Debug("completed logging exception to database")
}

// resolveExceptionLocation resolves the location tuple elements into foreign
// references on the record. The item lookup (fourth element) is best-effort,
// but kind and account must resolve exactly.
func (d *Datastore) resolveExceptionLocation(ctx context.Context, q stores.Querier, rec *stores.ExceptionRecord, location []string) error {
	if len(location) == 0 {
		return nil
	}

	if len(location) == 4 {
		items, err := d.store.ListItemsFiltered(ctx, q, stores.ItemFilter{Name: location[3]})
		if err != nil {
			return err
		}
		if len(items) > 0 {
			rec.ItemID = &items[0].ID
		}
	}

	if len(location) >= 3 {
		region := location[2]
		rec.Region = &region
	}

	if len(location) >= 2 {
		account, err := d.store.GetAccountByName(ctx, q, location[1])
		if err != nil {
			return err
		}
		if account == nil {
			return NewNotFoundError(fmt.Sprintf("account with name [%s] not found", location[1]))
		}
		rec.AccountID = &account.ID
	}

	tech, err := d.store.GetTechnologyByName(ctx, q, location[0])
	if err != nil {
		return err
	}
	if tech == nil {
		return NewNotFoundError(fmt.Sprintf("technology with name [%s] not found", location[0]))
	}
	rec.TechID = &tech.ID

	return nil
}

// PurgeExpiredExceptions deletes every exception record whose TTL is at or
// before now.
func (d *Datastore) PurgeExpiredExceptions(ctx context.Context, now time.Time) error {
	purged, err := d.store.DeleteExpiredExceptions(ctx, d.store.Handle(), now)
	if err != nil {
		return err
	}
	if purged > 0 {
		d.log.Infof("purged %d expired exception records", purged)
	}
	return nil
}

// ListExceptions returns exception records for operator inspection, newest
// first.
func (d *Datastore) ListExceptions(ctx context.Context, limit, offset int) ([]*stores.ExceptionRecord, error) {
	return d.store.ListExceptions(ctx, d.store.Handle(), limit, offset)
}

// errorType reports a stable type label for an error: the engine class when
// classified, the Go type otherwise.
func errorType(err error) string {
	var e *DatastoreError
	if errors.As(err, &e) {
		return string(e.Class)
	}
	return fmt.Sprintf("%T", err)
}

// classifyWrite maps storage-level uniqueness failures (duplicate ARN) to a
// constraint error; everything else passes through untouched.
func classifyWrite(err error) error {
	if err == nil {
		return nil
	}
	// modernc.org/sqlite reports SQLITE_CONSTRAINT_UNIQUE in the message;
	// the text is stable enough to classify without importing driver
	// internals.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return NewConstraintError("storage constraint violated", err)
	}
	return err
}
