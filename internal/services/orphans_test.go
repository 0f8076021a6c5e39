package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrelhouse/distro-admin/internal/models"
)

func activeKeys(t *testing.T, rels *fakeRelStore, ownerID int) []models.RelKey {
	t.Helper()
	snaps, err := rels.ActiveForOwner(context.Background(), ownerID)
	require.NoError(t, err)
	keys := make([]models.RelKey, 0, len(snaps))
	for _, s := range snaps {
		keys = append(keys, s.Key)
	}
	return keys
}

func TestOrphanRestoreReversesSweep(t *testing.T) {
	brands := newFakeEntityStore(models.KindBrand, "Acme Spirits", "Bravo Wines", "Cascade Brewing")
	suppliers := newFakeEntityStore(models.KindSupplier, "Vintage Imports")
	rels := newFakeRelStore(
		models.RelKey{EntityID: 1, OwnerID: 1},
		models.RelKey{EntityID: 2, OwnerID: 1},
		models.RelKey{EntityID: 3, OwnerID: 1},
	)
	ledger := newFakeLedger()
	r := portfolioReconciler(brands, suppliers, rels, ledger)

	before := activeKeys(t, rels, 1)

	resp, err := r.Run(context.Background(), 1, singleBatch(
		models.ImportRow{Name: "Acme Spirits"},
		models.ImportRow{Name: "Bravo Wines"},
	))
	require.NoError(t, err)
	require.Equal(t, 1, resp.Orphaned)
	require.Len(t, rels.orphans, 1)

	require.NoError(t, rels.RestoreOrphan(context.Background(), rels.orphans[0].id))

	// The restored relationship is active and verified, the orphan record
	// is gone, and the active set matches what existed before the sweep
	assert.Empty(t, rels.orphans)
	restored, ok := rels.active[models.RelKey{EntityID: 3, OwnerID: 1}]
	require.True(t, ok)
	assert.True(t, restored.IsVerified)
	assert.Equal(t, before, activeKeys(t, rels, 1))

	// A full re-import after the restore verifies everything and orphans
	// nothing
	resp, err = r.Run(context.Background(), 1, singleBatch(
		models.ImportRow{Name: "Acme Spirits"},
		models.ImportRow{Name: "Bravo Wines"},
		models.ImportRow{Name: "Cascade Brewing"},
	))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 3, resp.Verified)
	assert.Equal(t, 0, resp.Orphaned)
	assert.Empty(t, rels.orphans)
}
