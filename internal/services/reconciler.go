package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/matching"
	"github.com/barrelhouse/distro-admin/internal/models"
)

// Import types recorded in the ledger
const (
	ImportBrands               = "brands"
	ImportSupplierPortfolio    = "supplier_portfolio"
	ImportDistributorPortfolio = "distributor_portfolio"
)

// maxReportedErrors bounds the error list returned to the caller; the full
// count still lands in the ledger
const maxReportedErrors = 20

// EntityStore is the slice of entity persistence the engine needs for one
// entity kind
type EntityStore interface {
	ListPage(ctx context.Context, limit, offset int) ([]models.Entity, error)
	GetByID(ctx context.Context, id int) (*models.Entity, error)
	GetByName(ctx context.Context, name string) (*models.Entity, error)
	Create(ctx context.Context, req *models.CreateEntityRequest) (*models.Entity, error)
	FillMissing(ctx context.Context, id int, url, logoURL, dataSource *string) error
	Kind() models.EntityKind
}

// RelationshipStore persists one relationship family
type RelationshipStore interface {
	Upsert(ctx context.Context, key models.RelKey, source *string) (created bool, err error)
	ActiveForOwner(ctx context.Context, ownerID int) ([]models.RelationshipSnapshot, error)
	MoveToOrphan(ctx context.Context, key models.RelKey, reason string) error
}

// Ledger records import jobs, their counters, and the append-only audit
// trail
type Ledger interface {
	EnsureJob(ctx context.Context, existingID *int, importType, fileName string) (int, error)
	AddCounts(ctx context.Context, jobID int, counts models.ImportCounts) error
	SetStatus(ctx context.Context, jobID int, status string) error
	AppendChange(ctx context.Context, change *models.ImportChange) error
	TouchedKeys(ctx context.Context, jobID int) ([]models.RelKey, error)
	GetImportJob(ctx context.Context, id int) (*models.ImportJob, error)
}

// StateStore resolves state codes on scoped imports
type StateStore interface {
	GetStateByCode(ctx context.Context, code string) (*models.State, error)
}

// ReconcilerConfig wires one import kind. The same engine serves brand,
// supplier-portfolio, and distributor-portfolio imports; only the wiring
// differs.
type ReconcilerConfig struct {
	ImportType string
	// Entities is the store for the entity kind named by import rows
	Entities EntityStore
	// Owners resolves the owning entity on portfolio imports (nil for
	// plain entity imports)
	Owners EntityStore
	// Relationships is nil for plain entity imports
	Relationships RelationshipStore
	// States is required when the relationship family is state-scoped
	States StateStore
	Ledger Ledger
	Scoped bool
}

// Reconciler applies one import batch: resolve-or-create each named entity,
// upsert its relationship, then orphan whatever the job no longer
// references. Batches within a job are sequenced by the caller.
type Reconciler struct {
	cfg ReconcilerConfig
}

// NewReconciler creates an engine for one import kind
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{cfg: cfg}
}

// Run processes one batch. Row-level failures are collected and never abort
// the batch; setup failures abort the whole job.
func (r *Reconciler) Run(ctx context.Context, ownerID int, req *models.ImportRequest) (*models.ImportResponse, error) {
	jobID, err := r.cfg.Ledger.EnsureJob(ctx, req.ImportJobID, r.cfg.ImportType, req.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open import job: %w", err)
	}

	if r.cfg.Owners != nil {
		if _, err := r.cfg.Owners.GetByID(ctx, ownerID); err != nil {
			r.abort(ctx, jobID)
			return nil, fmt.Errorf("failed to load owning entity %d: %w", ownerID, err)
		}
	}

	// Point-in-time snapshot of the existing entity set; no row can be
	// classified without it
	idx, err := matching.BuildIndex(ctx, r.cfg.Entities)
	if err != nil {
		r.abort(ctx, jobID)
		return nil, fmt.Errorf("failed to index existing entities: %w", err)
	}

	overrides := make(map[int]models.ConfirmedMatch, len(req.ConfirmedMatches))
	for _, cm := range req.ConfirmedMatches {
		overrides[cm.RowIndex] = cm
	}

	var counts models.ImportCounts
	var rowErrors []string

	for i, row := range req.Rows {
		if err := r.processRow(ctx, jobID, ownerID, i, row, idx, overrides, &counts); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d (%s): %v", i+1, row.Name, err))
		}
	}

	// Orphan detection runs only once the job has seen its full row set
	if req.IsLastBatch && r.cfg.Relationships != nil {
		orphaned, err := r.sweepOrphans(ctx, jobID, ownerID)
		counts.Orphaned += orphaned
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("orphan sweep: %v", err))
			counts.Errored++
		}
	}

	if err := r.cfg.Ledger.AddCounts(ctx, jobID, counts); err != nil {
		return nil, fmt.Errorf("failed to update import job counters: %w", err)
	}

	if req.IsLastBatch {
		if err := r.finalize(ctx, jobID); err != nil {
			log.Printf("Warning: failed to finalize import job %d: %v", jobID, err)
		}
	}

	resp := &models.ImportResponse{
		Created:     counts.Created,
		Updated:     counts.Updated,
		Verified:    counts.Verified,
		Orphaned:    counts.Orphaned,
		Skipped:     counts.Skipped,
		Errors:      rowErrors,
		ImportJobID: jobID,
	}
	if len(resp.Errors) > maxReportedErrors {
		resp.Errors = resp.Errors[:maxReportedErrors]
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	return resp, nil
}

// processRow resolves one row to a persisted entity id and, on portfolio
// imports, upserts its relationship
func (r *Reconciler) processRow(
	ctx context.Context,
	jobID, ownerID, rowIndex int,
	row models.ImportRow,
	idx *matching.Index,
	overrides map[int]models.ConfirmedMatch,
	counts *models.ImportCounts,
) error {
	name := strings.TrimSpace(row.Name)
	match := matching.MatchRow(rowIndex, name, idx)
	if match.MatchType == models.MatchError {
		counts.Skipped++
		return fmt.Errorf("name is required")
	}

	override, hasOverride := overrides[rowIndex]
	entity, err := r.resolveEntity(ctx, jobID, row, name, match, override, hasOverride, counts)
	if err != nil {
		counts.Errored++
		return err
	}

	if r.cfg.Relationships == nil {
		return nil
	}

	key := models.RelKey{EntityID: entity.ID, OwnerID: ownerID}
	if r.cfg.Scoped {
		if row.State == nil || strings.TrimSpace(*row.State) == "" {
			counts.Skipped++
			return fmt.Errorf("state is required")
		}
		state, err := r.cfg.States.GetStateByCode(ctx, strings.TrimSpace(*row.State))
		if err != nil {
			counts.Skipped++
			return err
		}
		key.StateID = state.ID
	}

	created, err := r.cfg.Relationships.Upsert(ctx, key, row.RelationshipSource)
	if err != nil {
		// A duplicate-key collision means a concurrent writer inserted the
		// same tuple first; the row's intent is satisfied either way
		if database.IsDuplicateKey(err) {
			created = false
		} else {
			counts.Errored++
			return err
		}
	}

	changeType := models.ChangeVerified
	if created {
		counts.Created++
		changeType = models.ChangeCreated
	} else {
		counts.Verified++
	}
	r.appendRelChange(ctx, jobID, changeType, key, row)

	return nil
}

// resolveEntity lands every row on one concrete persisted entity id before
// any relationship work happens
func (r *Reconciler) resolveEntity(
	ctx context.Context,
	jobID int,
	row models.ImportRow,
	name string,
	match models.RowMatch,
	override models.ConfirmedMatch,
	hasOverride bool,
	counts *models.ImportCounts,
) (*models.Entity, error) {
	// Human confirmation always wins over the automatic classification
	if hasOverride && override.UseExisting && override.EntityID > 0 {
		return r.cfg.Entities.GetByID(ctx, override.EntityID)
	}
	forceCreate := hasOverride && !override.UseExisting

	if match.Matched != nil && !forceCreate {
		entity := match.Matched
		if needsFill(entity, row) {
			if err := r.cfg.Entities.FillMissing(ctx, entity.ID, pick(entity.URL, row.URL), pick(entity.LogoURL, row.LogoURL), pick(entity.DataSource, row.DataSource)); err != nil {
				return nil, err
			}
			counts.Updated++
		}
		return entity, nil
	}

	entity, err := r.cfg.Entities.Create(ctx, &models.CreateEntityRequest{
		Name:       name,
		URL:        row.URL,
		LogoURL:    row.LogoURL,
		DataSource: row.DataSource,
	})
	if err != nil {
		// Lost a unique-name race with a concurrent import; the entity
		// exists now, use it
		if database.IsDuplicateKey(err) {
			return r.cfg.Entities.GetByName(ctx, name)
		}
		return nil, err
	}

	counts.Created++
	r.appendEntityChange(ctx, jobID, entity, row)
	return entity, nil
}

// needsFill reports whether the row carries data for any field the matched
// entity is missing. Imports enrich, they never overwrite.
func needsFill(e *models.Entity, row models.ImportRow) bool {
	return (e.URL == nil && row.URL != nil) ||
		(e.LogoURL == nil && row.LogoURL != nil) ||
		(e.DataSource == nil && row.DataSource != nil)
}

func pick(existing, incoming *string) *string {
	if existing != nil {
		return existing
	}
	return incoming
}

func (r *Reconciler) appendEntityChange(ctx context.Context, jobID int, entity *models.Entity, row models.ImportRow) {
	newValue, _ := json.Marshal(entity)
	sourceRow := marshalRow(row)
	change := &models.ImportChange{
		ImportJobID: jobID,
		ChangeType:  models.ChangeCreated,
		EntityKind:  string(r.cfg.Entities.Kind()),
		EntityID:    &entity.ID,
		NewValue:    newValue,
		SourceRow:   sourceRow,
	}
	if err := r.cfg.Ledger.AppendChange(ctx, change); err != nil {
		log.Printf("Warning: failed to append entity change for job %d: %v", jobID, err)
	}
}

func (r *Reconciler) appendRelChange(ctx context.Context, jobID int, changeType string, key models.RelKey, row models.ImportRow) {
	newValue, _ := json.Marshal(key)
	change := &models.ImportChange{
		ImportJobID: jobID,
		ChangeType:  changeType,
		EntityKind:  string(r.cfg.Entities.Kind()),
		EntityID:    &key.EntityID,
		OwnerID:     &key.OwnerID,
		NewValue:    newValue,
		SourceRow:   marshalRow(row),
	}
	if key.StateID != 0 {
		stateID := key.StateID
		change.StateID = &stateID
	}
	if err := r.cfg.Ledger.AppendChange(ctx, change); err != nil {
		log.Printf("Warning: failed to append relationship change for job %d: %v", jobID, err)
	}
}

func marshalRow(row models.ImportRow) *string {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

// finalize sets the job's terminal status from its accumulated counters
func (r *Reconciler) finalize(ctx context.Context, jobID int) error {
	job, err := r.cfg.Ledger.GetImportJob(ctx, jobID)
	if err != nil {
		return err
	}

	status := models.JobStatusCompleted
	if job.Counts.Errored > 0 || job.Counts.Skipped > 0 {
		status = models.JobStatusCompletedWithErrors
	}
	return r.cfg.Ledger.SetStatus(ctx, jobID, status)
}

// abort marks a job that failed before its rows could be processed
func (r *Reconciler) abort(ctx context.Context, jobID int) {
	if err := r.cfg.Ledger.SetStatus(ctx, jobID, models.JobStatusPartial); err != nil {
		log.Printf("Warning: failed to mark import job %d partial: %v", jobID, err)
	}
}
