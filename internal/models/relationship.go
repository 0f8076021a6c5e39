package models

import (
	"time"
)

// RelKey is the composite identity of one relationship row. EntityID is the
// partner side resolved from an import row, OwnerID the entity the import
// batch belongs to. StateID is zero for unscoped pairs.
type RelKey struct {
	EntityID int `json:"entity_id"`
	OwnerID  int `json:"owner_id"`
	StateID  int `json:"state_id,omitempty"`
}

// BrandSupplier links a brand to the supplier that carries it (unscoped)
type BrandSupplier struct {
	ID                 int        `json:"id"`
	BrandID            int        `json:"brand_id"`
	SupplierID         int        `json:"supplier_id"`
	IsVerified         bool       `json:"is_verified"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty"`
	RelationshipSource *string    `json:"relationship_source,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SupplierDistributor links a supplier to a distributor within one state
type SupplierDistributor struct {
	ID                 int        `json:"id"`
	SupplierID         int        `json:"supplier_id"`
	DistributorID      int        `json:"distributor_id"`
	StateID            int        `json:"state_id"`
	StateCode          string     `json:"state_code,omitempty"`
	IsVerified         bool       `json:"is_verified"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty"`
	RelationshipSource *string    `json:"relationship_source,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// RelationshipSnapshot carries the full state of one active relationship,
// independent of which relationship table it came from
type RelationshipSnapshot struct {
	Key                RelKey     `json:"key"`
	IsVerified         bool       `json:"is_verified"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty"`
	RelationshipSource *string    `json:"relationship_source,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// OrphanReasonNotInImport marks relationships dropped because the most recent
// import for their owning entity no longer referenced them
const OrphanReasonNotInImport = "not_in_import"

// OrphanedRelationship is a relationship snapshot parked outside the active
// set. It can be restored or permanently deleted, never silently dropped.
type OrphanedRelationship struct {
	ID                 int        `json:"id"`
	EntityID           int        `json:"entity_id"`
	EntityName         string     `json:"entity_name,omitempty"`
	OwnerID            int        `json:"owner_id"`
	OwnerName          string     `json:"owner_name,omitempty"`
	StateID            *int       `json:"state_id,omitempty"`
	WasVerified        bool       `json:"was_verified"`
	LastVerifiedAt     *time.Time `json:"last_verified_at,omitempty"`
	RelationshipSource *string    `json:"relationship_source,omitempty"`
	Reason             string     `json:"reason"`
	OriginalCreatedAt  time.Time  `json:"original_created_at"`
	OrphanedAt         time.Time  `json:"orphaned_at"`
}

// Key returns the composite identity of the orphaned relationship
func (o *OrphanedRelationship) Key() RelKey {
	k := RelKey{EntityID: o.EntityID, OwnerID: o.OwnerID}
	if o.StateID != nil {
		k.StateID = *o.StateID
	}
	return k
}
