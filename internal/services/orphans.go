package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/barrelhouse/distro-admin/internal/models"
)

// sweepOrphans runs after the final batch of a job: every active
// relationship of the owner that no batch of this job touched has dropped
// out of the source sheet and is moved aside for review. Returns the number
// of relationships orphaned.
func (r *Reconciler) sweepOrphans(ctx context.Context, jobID, ownerID int) (int, error) {
	touched, err := r.cfg.Ledger.TouchedKeys(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to load touched relationship keys: %w", err)
	}
	seen := make(map[models.RelKey]struct{}, len(touched))
	for _, key := range touched {
		seen[key] = struct{}{}
	}

	active, err := r.cfg.Relationships.ActiveForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load active relationships: %w", err)
	}

	orphaned := 0
	for _, snap := range active {
		if _, ok := seen[snap.Key]; ok {
			continue
		}
		if err := r.cfg.Relationships.MoveToOrphan(ctx, snap.Key, models.OrphanReasonNotInImport); err != nil {
			log.Printf("Warning: failed to orphan relationship %+v: %v", snap.Key, err)
			continue
		}
		r.appendOrphanChange(ctx, jobID, snap)
		orphaned++
	}
	return orphaned, nil
}

func (r *Reconciler) appendOrphanChange(ctx context.Context, jobID int, snap models.RelationshipSnapshot) {
	oldValue, _ := json.Marshal(snap)
	change := &models.ImportChange{
		ImportJobID: jobID,
		ChangeType:  models.ChangeOrphaned,
		EntityKind:  string(r.cfg.Entities.Kind()),
		EntityID:    &snap.Key.EntityID,
		OwnerID:     &snap.Key.OwnerID,
		OldValue:    oldValue,
	}
	if snap.Key.StateID != 0 {
		stateID := snap.Key.StateID
		change.StateID = &stateID
	}
	if err := r.cfg.Ledger.AppendChange(ctx, change); err != nil {
		log.Printf("Warning: failed to append orphan change for job %d: %v", jobID, err)
	}
}
