package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrelhouse/distro-admin/internal/database"
	"github.com/barrelhouse/distro-admin/internal/models"
)

func str(s string) *string {
	return &s
}

type fakeEntityStore struct {
	kind     models.EntityKind
	entities []models.Entity
	nextID   int
	listErr  error
}

func newFakeEntityStore(kind models.EntityKind, names ...string) *fakeEntityStore {
	s := &fakeEntityStore{kind: kind, nextID: 1}
	for _, name := range names {
		s.entities = append(s.entities, models.Entity{ID: s.nextID, Name: name})
		s.nextID++
	}
	return s
}

func (s *fakeEntityStore) Kind() models.EntityKind {
	return s.kind
}

func (s *fakeEntityStore) ListPage(ctx context.Context, limit, offset int) ([]models.Entity, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if offset >= len(s.entities) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entities) {
		end = len(s.entities)
	}
	return s.entities[offset:end], nil
}

func (s *fakeEntityStore) GetByID(ctx context.Context, id int) (*models.Entity, error) {
	for i := range s.entities {
		if s.entities[i].ID == id {
			e := s.entities[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%s %d: %w", s.kind, id, database.ErrEntityNotFound)
}

func (s *fakeEntityStore) GetByName(ctx context.Context, name string) (*models.Entity, error) {
	for i := range s.entities {
		if strings.EqualFold(s.entities[i].Name, name) {
			e := s.entities[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%s %q not found", s.kind, name)
}

func (s *fakeEntityStore) Create(ctx context.Context, req *models.CreateEntityRequest) (*models.Entity, error) {
	for i := range s.entities {
		if strings.EqualFold(s.entities[i].Name, req.Name) {
			return nil, &pgconn.PgError{Code: "23505"}
		}
	}
	e := models.Entity{
		ID:         s.nextID,
		Name:       req.Name,
		URL:        req.URL,
		LogoURL:    req.LogoURL,
		DataSource: req.DataSource,
	}
	s.nextID++
	s.entities = append(s.entities, e)
	return &e, nil
}

func (s *fakeEntityStore) FillMissing(ctx context.Context, id int, url, logoURL, dataSource *string) error {
	for i := range s.entities {
		if s.entities[i].ID != id {
			continue
		}
		if s.entities[i].URL == nil {
			s.entities[i].URL = url
		}
		if s.entities[i].LogoURL == nil {
			s.entities[i].LogoURL = logoURL
		}
		if s.entities[i].DataSource == nil {
			s.entities[i].DataSource = dataSource
		}
		return nil
	}
	return fmt.Errorf("%s %d not found", s.kind, id)
}

type orphanRecord struct {
	id     int
	snap   models.RelationshipSnapshot
	reason string
}

type fakeRelStore struct {
	active       map[models.RelKey]models.RelationshipSnapshot
	orphans      []orphanRecord
	nextOrphanID int

	// returned by the next Upsert call, then cleared
	upsertErr error
}

func newFakeRelStore(keys ...models.RelKey) *fakeRelStore {
	s := &fakeRelStore{active: make(map[models.RelKey]models.RelationshipSnapshot), nextOrphanID: 1}
	for _, key := range keys {
		s.active[key] = models.RelationshipSnapshot{Key: key}
	}
	return s
}

func (s *fakeRelStore) Upsert(ctx context.Context, key models.RelKey, source *string) (bool, error) {
	if s.upsertErr != nil {
		err := s.upsertErr
		s.upsertErr = nil
		return false, err
	}
	if snap, ok := s.active[key]; ok {
		snap.IsVerified = true
		s.active[key] = snap
		return false, nil
	}
	s.active[key] = models.RelationshipSnapshot{Key: key, IsVerified: true, RelationshipSource: source}
	return true, nil
}

func (s *fakeRelStore) ActiveForOwner(ctx context.Context, ownerID int) ([]models.RelationshipSnapshot, error) {
	var out []models.RelationshipSnapshot
	for _, snap := range s.active {
		if snap.Key.OwnerID == ownerID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.EntityID < out[j].Key.EntityID })
	return out, nil
}

func (s *fakeRelStore) MoveToOrphan(ctx context.Context, key models.RelKey, reason string) error {
	snap, ok := s.active[key]
	if !ok {
		return fmt.Errorf("relationship %+v not found", key)
	}
	delete(s.active, key)
	s.orphans = append(s.orphans, orphanRecord{id: s.nextOrphanID, snap: snap, reason: reason})
	s.nextOrphanID++
	return nil
}

func (s *fakeRelStore) RestoreOrphan(ctx context.Context, id int) error {
	for i, rec := range s.orphans {
		if rec.id != id {
			continue
		}
		snap := rec.snap
		snap.IsVerified = true
		s.active[snap.Key] = snap
		s.orphans = append(s.orphans[:i], s.orphans[i+1:]...)
		return nil
	}
	return database.ErrOrphanNotFound
}

type fakeLedger struct {
	nextJob int
	jobs    map[int]*models.ImportJob
	changes []models.ImportChange
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{nextJob: 1, jobs: make(map[int]*models.ImportJob)}
}

func (l *fakeLedger) EnsureJob(ctx context.Context, existingID *int, importType, fileName string) (int, error) {
	if existingID != nil {
		if _, ok := l.jobs[*existingID]; !ok {
			return 0, fmt.Errorf("import job %d: %w", *existingID, database.ErrImportJobNotFound)
		}
		return *existingID, nil
	}
	id := l.nextJob
	l.nextJob++
	l.jobs[id] = &models.ImportJob{ID: id, ImportType: importType, FileName: fileName, Status: models.JobStatusRunning}
	return id, nil
}

func (l *fakeLedger) AddCounts(ctx context.Context, jobID int, counts models.ImportCounts) error {
	job, ok := l.jobs[jobID]
	if !ok {
		return fmt.Errorf("import job %d not found", jobID)
	}
	job.Counts.Add(counts)
	return nil
}

func (l *fakeLedger) SetStatus(ctx context.Context, jobID int, status string) error {
	job, ok := l.jobs[jobID]
	if !ok {
		return fmt.Errorf("import job %d not found", jobID)
	}
	job.Status = status
	return nil
}

func (l *fakeLedger) AppendChange(ctx context.Context, change *models.ImportChange) error {
	l.changes = append(l.changes, *change)
	return nil
}

func (l *fakeLedger) TouchedKeys(ctx context.Context, jobID int) ([]models.RelKey, error) {
	seen := make(map[models.RelKey]struct{})
	var out []models.RelKey
	for _, c := range l.changes {
		if c.ImportJobID != jobID || c.OwnerID == nil || c.EntityID == nil {
			continue
		}
		if c.ChangeType != models.ChangeCreated && c.ChangeType != models.ChangeVerified {
			continue
		}
		key := models.RelKey{EntityID: *c.EntityID, OwnerID: *c.OwnerID}
		if c.StateID != nil {
			key.StateID = *c.StateID
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out, nil
}

func (l *fakeLedger) GetImportJob(ctx context.Context, id int) (*models.ImportJob, error) {
	job, ok := l.jobs[id]
	if !ok {
		return nil, fmt.Errorf("import job %d not found", id)
	}
	copied := *job
	return &copied, nil
}

type fakeStateStore struct {
	byCode map[string]int
}

func (s *fakeStateStore) GetStateByCode(ctx context.Context, code string) (*models.State, error) {
	id, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("unknown state code %q", code)
	}
	return &models.State{ID: id, Code: strings.ToUpper(code)}, nil
}

func brandImportReconciler(brands *fakeEntityStore, ledger *fakeLedger) *Reconciler {
	return NewReconciler(ReconcilerConfig{
		ImportType: ImportBrands,
		Entities:   brands,
		Ledger:     ledger,
	})
}

func portfolioReconciler(brands, suppliers *fakeEntityStore, rels *fakeRelStore, ledger *fakeLedger) *Reconciler {
	return NewReconciler(ReconcilerConfig{
		ImportType:    ImportSupplierPortfolio,
		Entities:      brands,
		Owners:        suppliers,
		Relationships: rels,
		Ledger:        ledger,
	})
}

func singleBatch(rows ...models.ImportRow) *models.ImportRequest {
	return &models.ImportRequest{
		Rows:         rows,
		FileName:     "portfolio.xlsx",
		IsFirstBatch: true,
		IsLastBatch:  true,
	}
}

func TestRunCreatesNewEntities(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	resp, err := r.Run(context.Background(), 0, singleBatch(
		models.ImportRow{Name: "Acme Spirits", URL: str("https://acme.example")},
		models.ImportRow{Name: "Bravo Wines"},
		models.ImportRow{Name: "Cascade Brewing"},
	))
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Created)
	assert.Equal(t, 0, resp.Updated)
	assert.Equal(t, 0, resp.Verified)
	assert.Empty(t, resp.Errors)
	assert.Len(t, brands.entities, 3)

	job := ledger.jobs[resp.ImportJobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Counts.Created)
	assert.Len(t, ledger.changes, 3)
	for _, c := range ledger.changes {
		assert.Equal(t, models.ChangeCreated, c.ChangeType)
		assert.Equal(t, "brand", c.EntityKind)
	}
}

func TestRunReimportIsIdempotent(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore()
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	rows := []models.ImportRow{
		{Name: "Acme Spirits"},
		{Name: "Bravo Wines"},
	}

	first, err := r.Run(context.Background(), 1, singleBatch(rows...))
	require.NoError(t, err)
	// Each row creates an entity and a relationship
	assert.Equal(t, 4, first.Created)
	assert.Equal(t, 0, first.Verified)
	assert.Equal(t, 0, first.Orphaned)

	second, err := r.Run(context.Background(), 1, singleBatch(rows...))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Verified)
	assert.Equal(t, 0, second.Orphaned)
	assert.Empty(t, second.Errors)
	assert.Len(t, brands.entities, 2)
	assert.Len(t, rels.active, 2)
}

func TestRunOrphansRelationshipsMissingFromImport(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits", "Bravo Wines", "Cascade Brewing")
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore(
		models.RelKey{EntityID: 1, OwnerID: 1},
		models.RelKey{EntityID: 2, OwnerID: 1},
		models.RelKey{EntityID: 3, OwnerID: 1},
	)
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	resp, err := r.Run(context.Background(), 1, singleBatch(
		models.ImportRow{Name: "Acme Spirits"},
		models.ImportRow{Name: "Bravo Wines"},
	))
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Verified)
	assert.Equal(t, 1, resp.Orphaned)
	assert.Len(t, rels.active, 2)
	require.Len(t, rels.orphans, 1)
	assert.Equal(t, 3, rels.orphans[0].snap.Key.EntityID)
	assert.Equal(t, models.OrphanReasonNotInImport, rels.orphans[0].reason)
}

func TestRunMultiBatchOrphanSweepSpansBatches(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits", "Bravo Wines", "Cascade Brewing")
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore(
		models.RelKey{EntityID: 1, OwnerID: 1},
		models.RelKey{EntityID: 2, OwnerID: 1},
		models.RelKey{EntityID: 3, OwnerID: 1},
	)
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	first, err := r.Run(context.Background(), 1, &models.ImportRequest{
		Rows:         []models.ImportRow{{Name: "Acme Spirits"}},
		FileName:     "portfolio.xlsx",
		IsFirstBatch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Orphaned)

	second, err := r.Run(context.Background(), 1, &models.ImportRequest{
		Rows:        []models.ImportRow{{Name: "Bravo Wines"}},
		FileName:    "portfolio.xlsx",
		IsLastBatch: true,
		ImportJobID: &first.ImportJobID,
	})
	require.NoError(t, err)

	// Acme was touched in batch one; only Cascade drops out
	assert.Equal(t, first.ImportJobID, second.ImportJobID)
	assert.Equal(t, 1, second.Orphaned)
	require.Len(t, rels.orphans, 1)
	assert.Equal(t, 3, rels.orphans[0].snap.Key.EntityID)
}

func TestRunConfirmedMatchOverridesClassification(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits", "Bravo Wines")
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore()
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	req := singleBatch(models.ImportRow{Name: "Acme Spirit"})
	req.ConfirmedMatches = []models.ConfirmedMatch{
		{RowIndex: 0, UseExisting: true, EntityID: 2},
	}

	resp, err := r.Run(context.Background(), 1, req)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	assert.Len(t, brands.entities, 2, "no new entity")
	_, linkedToBravo := rels.active[models.RelKey{EntityID: 2, OwnerID: 1}]
	assert.True(t, linkedToBravo)
}

func TestRunConfirmedNewForcesCreateDespiteMatch(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits")
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	req := singleBatch(models.ImportRow{Name: "Acme Spirit"})
	req.ConfirmedMatches = []models.ConfirmedMatch{
		{RowIndex: 0, UseExisting: false},
	}

	resp, err := r.Run(context.Background(), 0, req)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	assert.Len(t, brands.entities, 2)
}

func TestRunFillsMissingFieldsOnMatch(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits")
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	resp, err := r.Run(context.Background(), 0, singleBatch(
		models.ImportRow{Name: "Acme Spirits", URL: str("https://acme.example"), DataSource: str("sheet")},
	))
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Updated)
	assert.Equal(t, 0, resp.Created)
	require.NotNil(t, brands.entities[0].URL)
	assert.Equal(t, "https://acme.example", *brands.entities[0].URL)
}

func TestRunMatchedRowWithoutNewDataIsNoChange(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits")
	brands.entities[0].URL = str("https://acme.example")
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	resp, err := r.Run(context.Background(), 0, singleBatch(
		models.ImportRow{Name: "Acme Spirits", URL: str("https://other.example")},
	))
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Updated)
	assert.Equal(t, "https://acme.example", *brands.entities[0].URL, "existing data is never overwritten")
}

func TestRunRowErrorsDoNotAbortBatch(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	resp, err := r.Run(context.Background(), 0, singleBatch(
		models.ImportRow{Name: "   "},
		models.ImportRow{Name: "Bravo Wines"},
	))
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "row 1")
	assert.Equal(t, models.JobStatusCompletedWithErrors, ledger.jobs[resp.ImportJobID].Status)
}

func TestRunDuplicateRowsWithinBatchConverge(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore()
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	// The second row hits the unique-name constraint and resolves to the
	// entity the first row created
	resp, err := r.Run(context.Background(), 1, singleBatch(
		models.ImportRow{Name: "Acme Spirits"},
		models.ImportRow{Name: "Acme Spirits"},
	))
	require.NoError(t, err)

	assert.Empty(t, resp.Errors)
	assert.Len(t, brands.entities, 1)
	assert.Len(t, rels.active, 1)
	// One entity create, one relationship create, one relationship verify
	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 1, resp.Verified)
}

func TestRunRelationshipDuplicateKeyCountsAsVerified(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits")
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore()
	// A concurrent writer landed the same tuple first
	rels.upsertErr = &pgconn.PgError{Code: "23505"}
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	resp, err := r.Run(context.Background(), 1, singleBatch(models.ImportRow{Name: "Acme Spirits"}))
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 1, resp.Verified)
	assert.Empty(t, resp.Errors)

	job := ledger.jobs[resp.ImportJobID]
	require.NotNil(t, job)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.Counts.Errored)
	require.Len(t, ledger.changes, 1)
	assert.Equal(t, models.ChangeVerified, ledger.changes[0].ChangeType)
}

func TestRunScopedImportResolvesStates(t *testing.T) {
	distributors := newFakeEntityStore(models.KindDistributor, "Summit Distribution")
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore()
	ledger := newFakeLedger()
	states := &fakeStateStore{byCode: map[string]int{"CA": 5, "OR": 38}}

	r := NewReconciler(ReconcilerConfig{
		ImportType:    ImportDistributorPortfolio,
		Entities:      distributors,
		Owners:        suppliers,
		Relationships: rels,
		States:        states,
		Ledger:        ledger,
		Scoped:        true,
	})

	resp, err := r.Run(context.Background(), 1, singleBatch(
		models.ImportRow{Name: "Summit Distribution", State: str("CA")},
		models.ImportRow{Name: "Summit Distribution", State: str("OR")},
		models.ImportRow{Name: "Summit Distribution"},
	))
	require.NoError(t, err)

	// Same pair in two states is two distinct relationships
	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "state is required")

	_, ca := rels.active[models.RelKey{EntityID: 1, OwnerID: 1, StateID: 5}]
	_, or := rels.active[models.RelKey{EntityID: 1, OwnerID: 1, StateID: 38}]
	assert.True(t, ca)
	assert.True(t, or)
}

func TestRunIndexFailureAbortsJobAsPartial(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	brands.listErr = errors.New("connection reset")
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	_, err := r.Run(context.Background(), 0, singleBatch(models.ImportRow{Name: "Acme Spirits"}))
	require.Error(t, err)

	require.Len(t, ledger.jobs, 1)
	assert.Equal(t, models.JobStatusPartial, ledger.jobs[1].Status)
}

func TestRunUnknownOwnerAborts(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	suppliers := newFakeEntityStore(models.KindSupplier)
	rels := newFakeRelStore()
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	_, err := r.Run(context.Background(), 99, singleBatch(models.ImportRow{Name: "Acme Spirits"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrEntityNotFound)
	assert.Equal(t, models.JobStatusPartial, ledger.jobs[1].Status)
}

func TestRunStaleImportJobIDFails(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	ledger := newFakeLedger()
	r := brandImportReconciler(brands, ledger)

	stale := 42
	req := singleBatch(models.ImportRow{Name: "Acme Spirits"})
	req.ImportJobID = &stale

	_, err := r.Run(context.Background(), 0, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrImportJobNotFound)
	assert.Empty(t, ledger.jobs)
}
