package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrelhouse/distro-admin/internal/models"
)

func TestMatchRowExact(t *testing.T) {
	idx := NewIndex([]models.Entity{{ID: 1, Name: "Acme Spirits"}})

	m := MatchRow(0, "Acme Spirits", idx)

	assert.Equal(t, models.MatchExact, m.MatchType)
	assert.Equal(t, models.ActionUpdate, m.Action)
	require.NotNil(t, m.Matched)
	assert.Equal(t, 1, m.Matched.ID)
	assert.Equal(t, 1.0, m.Similarity)
}

func TestMatchRowFuzzyFirstWord(t *testing.T) {
	idx := NewIndex([]models.Entity{{ID: 2, Name: "The Global Wine Company"}})

	m := MatchRow(0, "Global Wine Co", idx)

	assert.Equal(t, models.MatchFuzzy, m.MatchType)
	assert.Equal(t, models.ActionMatch, m.Action)
	require.NotNil(t, m.Matched)
	assert.Equal(t, 2, m.Matched.ID)
	assert.Equal(t, 0.95, m.Similarity)
}

func TestMatchRowFuzzyScored(t *testing.T) {
	// Different first words, close spellings: forces the scored path
	idx := NewIndex([]models.Entity{{ID: 3, Name: "Akme Spirits"}})

	m := MatchRow(0, "Acme Spirits", idx)

	assert.Equal(t, models.MatchFuzzy, m.MatchType)
	require.NotNil(t, m.Matched)
	assert.Equal(t, 3, m.Matched.ID)
	assert.GreaterOrEqual(t, m.Similarity, MatchThreshold)
}

func TestMatchRowNew(t *testing.T) {
	idx := NewIndex([]models.Entity{
		{ID: 1, Name: "Acme Spirits"},
		{ID: 2, Name: "The Global Wine Company"},
	})

	m := MatchRow(0, "Totally Unique Distillery 9000", idx)

	assert.Equal(t, models.MatchNew, m.MatchType)
	assert.Equal(t, models.ActionCreate, m.Action)
	assert.Nil(t, m.Matched)
}

func TestMatchRowEmptyName(t *testing.T) {
	idx := NewIndex(nil)

	for _, name := range []string{"", "   "} {
		m := MatchRow(4, name, idx)
		assert.Equal(t, models.MatchError, m.MatchType)
		assert.Equal(t, models.ActionSkip, m.Action)
		assert.Equal(t, 4, m.RowIndex)
		assert.Nil(t, m.Matched)
	}
}

func TestMatchRowPartition(t *testing.T) {
	// Every non-empty name gets exactly one of exact/fuzzy/new
	idx := NewIndex([]models.Entity{
		{ID: 1, Name: "Acme Spirits"},
		{ID: 2, Name: "The Global Wine Company"},
		{ID: 3, Name: "Mountain Brewing"},
	})

	names := []string{
		"Acme Spirits",
		"Global Wine Co",
		"Mountain Brewery",
		"Zero Overlap Holdings 77",
		"x",
	}
	for _, name := range names {
		m := MatchRow(0, name, idx)
		assert.Contains(t, []string{models.MatchExact, models.MatchFuzzy, models.MatchNew}, m.MatchType, "name %q", name)
		if m.MatchType == models.MatchNew {
			assert.Nil(t, m.Matched)
		} else {
			assert.NotNil(t, m.Matched, "name %q", name)
		}
	}
}

func TestMatchRowsKeepsRowOrder(t *testing.T) {
	idx := NewIndex([]models.Entity{{ID: 1, Name: "Acme Spirits"}})

	rows := []models.ImportRow{
		{Name: "Acme Spirits"},
		{Name: ""},
		{Name: "Someone Else Entirely Ltd"},
	}
	matches := MatchRows(rows, idx)

	require.Len(t, matches, 3)
	for i, m := range matches {
		assert.Equal(t, i, m.RowIndex)
	}
	assert.Equal(t, models.MatchExact, matches[0].MatchType)
	assert.Equal(t, models.MatchError, matches[1].MatchType)
	assert.Equal(t, models.MatchNew, matches[2].MatchType)
}

func TestMatchRowDeterministic(t *testing.T) {
	entities := make([]models.Entity, 0, 40)
	for i := 0; i < 40; i++ {
		entities = append(entities, models.Entity{ID: i + 1, Name: fmt.Sprintf("Vendor %02d Holdings", i)})
	}
	idx := NewIndex(entities)

	first := MatchRow(0, "Vendor 07 Holdings Co", idx)
	for i := 0; i < 10; i++ {
		again := MatchRow(0, "Vendor 07 Holdings Co", idx)
		assert.Equal(t, first.MatchType, again.MatchType)
		assert.Equal(t, first.Similarity, again.Similarity)
		if first.Matched != nil {
			require.NotNil(t, again.Matched)
			assert.Equal(t, first.Matched.ID, again.Matched.ID)
		}
	}
}
