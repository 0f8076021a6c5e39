package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/barrelhouse/distro-admin/internal/matching"
	"github.com/barrelhouse/distro-admin/internal/models"
)

// maxRowCandidates caps how many alternate candidates each classified row
// carries back to the review UI
const maxRowCandidates = 5

// ValidationStore persists asynchronous validation jobs
type ValidationStore interface {
	CreateValidationJob(ctx context.Context, job *models.ValidationJob) error
	FinishValidationJob(ctx context.Context, id, status string, result []models.RowMatch, errMsg *string) error
}

// Validator classifies import rows against the existing entity set without
// writing anything. Large sheets run asynchronously behind a durable job
// record so a restarted server can still answer status polls.
type Validator struct {
	stores map[models.EntityKind]EntityStore
	jobs   ValidationStore
	ttl    time.Duration
}

func NewValidator(jobs ValidationStore, ttl time.Duration) *Validator {
	return &Validator{
		stores: make(map[models.EntityKind]EntityStore),
		jobs:   jobs,
		ttl:    ttl,
	}
}

// Register adds the entity store serving one kind
func (v *Validator) Register(store EntityStore) {
	v.stores[store.Kind()] = store
}

// Classify runs the full match pipeline over a batch and returns per-row
// classifications plus alternate candidates for review
func (v *Validator) Classify(ctx context.Context, kind models.EntityKind, rows []models.ImportRow) (*models.ValidateResponse, error) {
	store, ok := v.stores[kind]
	if !ok {
		return nil, fmt.Errorf("no entity store registered for kind %q", kind)
	}

	idx, err := matching.BuildIndex(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("failed to index existing entities: %w", err)
	}

	matches := matching.MatchRows(rows, idx)
	for i := range matches {
		if matches[i].MatchType != models.MatchFuzzy && matches[i].MatchType != models.MatchNew {
			continue
		}
		for _, cand := range idx.Candidates(matches[i].Name) {
			if len(matches[i].Candidates) >= maxRowCandidates {
				break
			}
			matches[i].Candidates = append(matches[i].Candidates, *cand.Entity)
		}
	}

	return &models.ValidateResponse{Matches: matches, Total: len(matches)}, nil
}

// StartAsync creates a durable pending job, kicks off classification in the
// background, and returns the job id for polling
func (v *Validator) StartAsync(ctx context.Context, kind models.EntityKind, rows []models.ImportRow) (string, error) {
	job := &models.ValidationJob{
		ID:        uuid.NewString(),
		Status:    models.ValidationPending,
		ExpiresAt: time.Now().Add(v.ttl),
	}
	if err := v.jobs.CreateValidationJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create validation job: %w", err)
	}

	go func() {
		// The request context dies with the HTTP response; the job does not
		bg := context.Background()
		resp, err := v.Classify(bg, kind, rows)
		if err != nil {
			msg := err.Error()
			if ferr := v.jobs.FinishValidationJob(bg, job.ID, models.ValidationFailed, nil, &msg); ferr != nil {
				log.Printf("Warning: failed to record validation job %s failure: %v", job.ID, ferr)
			}
			return
		}
		if err := v.jobs.FinishValidationJob(bg, job.ID, models.ValidationCompleted, resp.Matches, nil); err != nil {
			log.Printf("Warning: failed to record validation job %s result: %v", job.ID, err)
		}
	}()

	return job.ID, nil
}
