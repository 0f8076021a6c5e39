package models

import (
	"time"
)

// EntityKind identifies which of the three entity tables a record lives in
type EntityKind string

const (
	KindBrand       EntityKind = "brand"
	KindSupplier    EntityKind = "supplier"
	KindDistributor EntityKind = "distributor"
)

// Valid reports whether the kind names a real entity table
func (k EntityKind) Valid() bool {
	switch k {
	case KindBrand, KindSupplier, KindDistributor:
		return true
	}
	return false
}

// Entity is a brand, supplier, or distributor record. The three tables share
// one shape; the display name is the natural key used for import matching.
type Entity struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	URL        *string    `json:"url,omitempty"`
	LogoURL    *string    `json:"logo_url,omitempty"`
	DataSource *string    `json:"data_source,omitempty"`
	IsOrphaned bool       `json:"is_orphaned"`
	OrphanedAt *time.Time `json:"orphaned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// State is a US state used to scope distributor relationships
type State struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// CreateEntityRequest is the request body for creating an entity
type CreateEntityRequest struct {
	Name       string  `json:"name"`
	URL        *string `json:"url,omitempty"`
	LogoURL    *string `json:"logo_url,omitempty"`
	DataSource *string `json:"data_source,omitempty"`
}

// UpdateEntityRequest is the request body for updating an entity
type UpdateEntityRequest struct {
	Name       *string `json:"name,omitempty"`
	URL        *string `json:"url,omitempty"`
	LogoURL    *string `json:"logo_url,omitempty"`
	DataSource *string `json:"data_source,omitempty"`
}

// EntityListParams contains parameters for listing entities
type EntityListParams struct {
	Limit           int
	Offset          int
	Search          string
	IncludeOrphaned bool
}

// PortalStats contains aggregate counts for the dashboard
type PortalStats struct {
	Brands               int `json:"brands"`
	Suppliers            int `json:"suppliers"`
	Distributors         int `json:"distributors"`
	BrandSuppliers       int `json:"brand_suppliers"`
	SupplierDistributors int `json:"supplier_distributors"`
	Orphans              int `json:"orphans"`
	ImportJobs           int `json:"import_jobs"`
}
