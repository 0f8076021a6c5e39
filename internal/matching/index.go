package matching

import (
	"context"

	"github.com/barrelhouse/distro-admin/internal/models"
)

const (
	// indexPageSize is how many entities one store fetch returns while
	// building the index
	indexPageSize = 1000

	// firstWordCap bounds first-word bucket lookups
	firstWordCap = 50

	// candidateCap bounds the length-bucket candidate list per row
	candidateCap = 100

	// lengthWindow is the relative normalized-length range searched for
	// fuzzy candidates
	lengthWindow = 0.30
)

// EntityPager fetches one page of the existing entity set
type EntityPager interface {
	ListPage(ctx context.Context, limit, offset int) ([]models.Entity, error)
}

// entry pairs an entity with its precomputed normalized forms
type entry struct {
	entity models.Entity
	norm   string
}

// Index bounds the candidate search space for one import job. It is built
// once from the full existing-entity set and never mutated afterward; a new
// job rebuilds it from scratch.
type Index struct {
	exactByName map[string]*entry
	byFirstWord map[string][]*entry
	byLength    map[int][]*entry
	size        int
}

// NewIndex builds an index from an in-memory entity set
func NewIndex(entities []models.Entity) *Index {
	idx := &Index{
		exactByName: make(map[string]*entry),
		byFirstWord: make(map[string][]*entry),
		byLength:    make(map[int][]*entry),
	}
	for _, e := range entities {
		idx.add(e)
	}
	return idx
}

// BuildIndex pages through the complete entity set and indexes it. A fetch
// failure aborts the job; no row can be classified without the full set.
func BuildIndex(ctx context.Context, pager EntityPager) (*Index, error) {
	idx := &Index{
		exactByName: make(map[string]*entry),
		byFirstWord: make(map[string][]*entry),
		byLength:    make(map[int][]*entry),
	}

	for offset := 0; ; offset += indexPageSize {
		page, err := pager.ListPage(ctx, indexPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			idx.add(e)
		}
		if len(page) < indexPageSize {
			break
		}
	}

	return idx, nil
}

func (idx *Index) add(e models.Entity) {
	norm := Normalize(e.Name)
	if norm == "" {
		return
	}

	ent := &entry{entity: e, norm: norm}
	idx.size++

	// First entity wins for duplicate names; the store enforces a unique
	// name index, but older rows may predate it
	if _, ok := idx.exactByName[norm]; !ok {
		idx.exactByName[norm] = ent
	}

	if fw := FirstSignificantWord(e.Name); fw != "" {
		idx.byFirstWord[fw] = append(idx.byFirstWord[fw], ent)
	}

	length := len([]rune(norm))
	idx.byLength[length] = append(idx.byLength[length], ent)
}

// Size returns how many entities were indexed
func (idx *Index) Size() int {
	return idx.size
}

// Exact returns the entity whose normalized name equals the import name's,
// or nil
func (idx *Index) Exact(name string) *models.Entity {
	ent, ok := idx.exactByName[Normalize(name)]
	if !ok {
		return nil
	}
	return &ent.entity
}

// FirstWordMatch returns the entity sharing the import name's first
// significant word whose normalized length is closest to the import
// name's, provided that word is long enough to mean anything. At most
// firstWordCap bucket entries are scanned.
func (idx *Index) FirstWordMatch(name string) *models.Entity {
	fw := FirstSignificantWord(name)
	if len(fw) <= 2 {
		return nil
	}

	bucket := idx.byFirstWord[fw]
	if len(bucket) == 0 {
		return nil
	}
	if len(bucket) > firstWordCap {
		bucket = bucket[:firstWordCap]
	}

	length := len([]rune(Normalize(name)))
	best := bucket[0]
	bestDelta := lengthDelta(best.norm, length)
	for _, ent := range bucket[1:] {
		if d := lengthDelta(ent.norm, length); d < bestDelta {
			best, bestDelta = ent, d
		}
	}
	return &best.entity
}

func lengthDelta(norm string, length int) int {
	d := len([]rune(norm)) - length
	if d < 0 {
		return -d
	}
	return d
}

// Candidates returns up to candidateCap entities whose normalized-name
// length falls within the window around the import name's length, closest
// length delta first.
func (idx *Index) Candidates(name string) []CandidateEntry {
	norm := Normalize(name)
	length := len([]rune(norm))
	if length == 0 {
		return nil
	}

	window := int(float64(length)*lengthWindow + 0.5)
	var out []CandidateEntry

	// Deltas walk outward from the exact length, so collection order
	// already prioritizes the closest lengths
	for delta := 0; delta <= window && len(out) < candidateCap; delta++ {
		lengths := []int{length + delta}
		if delta > 0 {
			lengths = append(lengths, length-delta)
		}
		for _, l := range lengths {
			if l <= 0 {
				continue
			}
			for _, ent := range idx.byLength[l] {
				if len(out) >= candidateCap {
					break
				}
				out = append(out, CandidateEntry{Entity: &ent.entity, Normalized: ent.norm})
			}
		}
	}

	return out
}

// CandidateEntry is one fuzzy-match candidate with its precomputed
// normalized name
type CandidateEntry struct {
	Entity     *models.Entity
	Normalized string
}
