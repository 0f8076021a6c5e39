package matching

import (
	"strings"

	"github.com/barrelhouse/distro-admin/internal/models"
)

// MatchRow classifies one imported row against the index as exact, fuzzy,
// new, or error. Deterministic for a fixed index; ties between equally
// scored candidates go to the first one encountered in bucket order.
func MatchRow(rowIndex int, name string, idx *Index) models.RowMatch {
	m := models.RowMatch{
		RowIndex: rowIndex,
		Name:     name,
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		m.MatchType = models.MatchError
		m.Action = models.ActionSkip
		return m
	}

	// Exact normalized-name hit
	if e := idx.Exact(trimmed); e != nil {
		m.MatchType = models.MatchExact
		m.Matched = e
		m.Similarity = 1.0
		m.Action = models.ActionUpdate
		return m
	}

	// First-significant-word shortcut: skips full scoring entirely
	if e := idx.FirstWordMatch(trimmed); e != nil {
		m.MatchType = models.MatchFuzzy
		m.Matched = e
		m.Similarity = firstWordScore
		m.Action = models.ActionMatch
		return m
	}

	// Length-bucketed candidates, best score wins
	norm := Normalize(trimmed)
	var best *models.Entity
	var bestScore float64

	for _, cand := range idx.Candidates(trimmed) {
		score := Similarity(norm, cand.Normalized)
		if score > bestScore {
			best = cand.Entity
			bestScore = score
		}
		// Candidates arrive closest-length first; a strong score this
		// early is not worth beating by fractions
		if bestScore >= strongMatchScore {
			break
		}
	}

	if best != nil && bestScore >= MatchThreshold {
		m.MatchType = models.MatchFuzzy
		m.Matched = best
		m.Similarity = bestScore
		m.Action = models.ActionMatch
		return m
	}

	m.MatchType = models.MatchNew
	m.Action = models.ActionCreate
	return m
}

// MatchRows classifies a whole batch in row order
func MatchRows(rows []models.ImportRow, idx *Index) []models.RowMatch {
	matches := make([]models.RowMatch, 0, len(rows))
	for i, row := range rows {
		matches = append(matches, MatchRow(i, row.Name, idx))
	}
	return matches
}
