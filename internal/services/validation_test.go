package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrelhouse/distro-admin/internal/models"
)

type fakeValidationStore struct {
	mu       sync.Mutex
	created  *models.ValidationJob
	status   string
	result   []models.RowMatch
	errMsg   *string
	finished chan struct{}
}

func newFakeValidationStore() *fakeValidationStore {
	return &fakeValidationStore{finished: make(chan struct{})}
}

func (s *fakeValidationStore) CreateValidationJob(ctx context.Context, job *models.ValidationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.created = &copied
	return nil
}

func (s *fakeValidationStore) FinishValidationJob(ctx context.Context, id, status string, result []models.RowMatch, errMsg *string) error {
	s.mu.Lock()
	s.status = status
	s.result = result
	s.errMsg = errMsg
	s.mu.Unlock()
	close(s.finished)
	return nil
}

func (s *fakeValidationStore) waitFinished(t *testing.T) {
	t.Helper()
	select {
	case <-s.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("validation job never finished")
	}
}

func TestClassifyLabelsRows(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits", "Global Wine Company")
	v := NewValidator(newFakeValidationStore(), time.Minute)
	v.Register(brands)

	resp, err := v.Classify(context.Background(), models.KindBrand, []models.ImportRow{
		{Name: "Acme Spirits"},
		{Name: "Global Wine Co"},
		{Name: "Totally Unique Distillery 9000"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total)

	exact := resp.Matches[0]
	assert.Equal(t, models.MatchExact, exact.MatchType)
	assert.Equal(t, models.ActionUpdate, exact.Action)
	require.NotNil(t, exact.Matched)
	assert.Equal(t, "Acme Spirits", exact.Matched.Name)
	assert.Empty(t, exact.Candidates, "exact matches need no alternates")

	fuzzy := resp.Matches[1]
	assert.Equal(t, models.MatchFuzzy, fuzzy.MatchType)
	assert.Equal(t, models.ActionMatch, fuzzy.Action)
	require.NotNil(t, fuzzy.Matched)
	assert.Equal(t, "Global Wine Company", fuzzy.Matched.Name)

	fresh := resp.Matches[2]
	assert.Equal(t, models.MatchNew, fresh.MatchType)
	assert.Equal(t, models.ActionCreate, fresh.Action)
	assert.Nil(t, fresh.Matched)
	assert.LessOrEqual(t, len(fresh.Candidates), maxRowCandidates)
}

func TestClassifyUnknownKind(t *testing.T) {
	v := NewValidator(newFakeValidationStore(), time.Minute)
	_, err := v.Classify(context.Background(), models.KindBrand, nil)
	require.Error(t, err)
}

func TestStartAsyncCompletesJob(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits")
	jobs := newFakeValidationStore()
	v := NewValidator(jobs, time.Minute)
	v.Register(brands)

	id, err := v.StartAsync(context.Background(), models.KindBrand, []models.ImportRow{
		{Name: "Acme Spirits"},
		{Name: "Bravo Wines"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	jobs.mu.Lock()
	created := jobs.created
	jobs.mu.Unlock()
	require.NotNil(t, created)
	assert.Equal(t, id, created.ID)
	assert.Equal(t, models.ValidationPending, created.Status)
	assert.True(t, created.ExpiresAt.After(time.Now()))

	jobs.waitFinished(t)
	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Equal(t, models.ValidationCompleted, jobs.status)
	require.Len(t, jobs.result, 2)
	assert.Equal(t, models.MatchExact, jobs.result[0].MatchType)
	assert.Equal(t, models.MatchNew, jobs.result[1].MatchType)
}

func TestStartAsyncRecordsFailure(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand)
	brands.listErr = assert.AnError
	jobs := newFakeValidationStore()
	v := NewValidator(jobs, time.Minute)
	v.Register(brands)

	_, err := v.StartAsync(context.Background(), models.KindBrand, []models.ImportRow{{Name: "Acme Spirits"}})
	require.NoError(t, err)

	jobs.waitFinished(t)
	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Equal(t, models.ValidationFailed, jobs.status)
	require.NotNil(t, jobs.errMsg)
}
