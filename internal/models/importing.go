package models

import (
	"encoding/json"
	"time"
)

// Match classifications assigned to an import row
const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
	MatchNew   = "new"
	MatchError = "error"
)

// Suggested actions paired with a match classification
const (
	ActionUpdate = "update"
	ActionMatch  = "match"
	ActionCreate = "create"
	ActionSkip   = "skip"
)

// ImportRow is one parsed spreadsheet row submitted to an import or
// validation endpoint. Parsing happens client-side; rows arrive as JSON.
type ImportRow struct {
	Name               string  `json:"name"`
	URL                *string `json:"url,omitempty"`
	LogoURL            *string `json:"logo_url,omitempty"`
	DataSource         *string `json:"data_source,omitempty"`
	State              *string `json:"state,omitempty"`
	RelationshipSource *string `json:"relationship_source,omitempty"`
}

// RowMatch is the per-row classification produced by the matcher
type RowMatch struct {
	RowIndex   int      `json:"row_index"`
	Name       string   `json:"name"`
	MatchType  string   `json:"match_type"`
	Matched    *Entity  `json:"matched_entity,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
	Action     string   `json:"action"`
	Candidates []Entity `json:"candidates,omitempty"`
}

// ConfirmedMatch is a human-confirmed override for one row. It always takes
// precedence over the automatic classification.
type ConfirmedMatch struct {
	RowIndex    int  `json:"row_index"`
	UseExisting bool `json:"use_existing"`
	EntityID    int  `json:"entity_id,omitempty"`
}

// ImportRequest is the body of one import batch POST
type ImportRequest struct {
	Rows             []ImportRow      `json:"rows"`
	FileName         string           `json:"file_name"`
	IsFirstBatch     bool             `json:"is_first_batch"`
	IsLastBatch      bool             `json:"is_last_batch"`
	ImportJobID      *int             `json:"import_job_id,omitempty"`
	ConfirmedMatches []ConfirmedMatch `json:"confirmed_matches,omitempty"`
}

// ImportResponse is the aggregate result of one import batch
type ImportResponse struct {
	Created     int      `json:"created"`
	Updated     int      `json:"updated"`
	Verified    int      `json:"verified"`
	Orphaned    int      `json:"orphaned"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors"`
	ImportJobID int      `json:"import_job_id"`
}

// ImportCounts accumulates ledger counters for one batch
type ImportCounts struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Verified int `json:"verified"`
	Orphaned int `json:"orphaned"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// Add accumulates another batch's counts
func (c *ImportCounts) Add(other ImportCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Verified += other.Verified
	c.Orphaned += other.Orphaned
	c.Skipped += other.Skipped
	c.Errored += other.Errored
}

// Import job terminal states
const (
	JobStatusRunning             = "running"
	JobStatusCompleted           = "completed"
	JobStatusCompletedWithErrors = "completed_with_errors"
	JobStatusPartial             = "partial"
)

// ImportJob is the ledger row for one import run, spanning all its batches
type ImportJob struct {
	ID         int          `json:"id"`
	ImportType string       `json:"import_type"`
	FileName   string       `json:"file_name"`
	Status     string       `json:"status"`
	Counts     ImportCounts `json:"counts"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Change types recorded in the audit trail
const (
	ChangeCreated  = "created"
	ChangeVerified = "verified"
	ChangeOrphaned = "orphaned"
)

// ImportChange is one append-only audit record for a single mutation
type ImportChange struct {
	ID          int             `json:"id"`
	ImportJobID int             `json:"import_job_id"`
	ChangeType  string          `json:"change_type"`
	EntityKind  string          `json:"entity_kind,omitempty"`
	EntityID    *int            `json:"entity_id,omitempty"`
	OwnerID     *int            `json:"owner_id,omitempty"`
	StateID     *int            `json:"state_id,omitempty"`
	OldValue    json.RawMessage `json:"old_value,omitempty"`
	NewValue    json.RawMessage `json:"new_value,omitempty"`
	SourceRow   *string         `json:"source_row,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StagingRow is an imported row parked for human approval before it is
// applied to production entities and relationships
type StagingRow struct {
	ID          int       `json:"id"`
	ImportJobID *int      `json:"import_job_id,omitempty"`
	ImportType  string    `json:"import_type"`
	OwnerID     *int      `json:"owner_id,omitempty"`
	Row         ImportRow `json:"row"`
	IsApproved  bool      `json:"is_approved"`
	CreatedAt   time.Time `json:"created_at"`
}

// StageRowsRequest parks a batch of rows for review
type StageRowsRequest struct {
	ImportJobID *int        `json:"import_job_id,omitempty"`
	ImportType  string      `json:"import_type"`
	OwnerID     *int        `json:"owner_id,omitempty"`
	Rows        []ImportRow `json:"rows"`
}

// Validation job states
const (
	ValidationPending   = "pending"
	ValidationCompleted = "completed"
	ValidationFailed    = "failed"
)

// ValidationJob is the durable status record for one asynchronous
// validation run. Expiry is a column checked on read, not a process timer.
type ValidationJob struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ValidateRequest is the body of a synchronous validation POST
type ValidateRequest struct {
	Rows []ImportRow `json:"rows"`
}

// ValidateResponse returns per-row classifications plus the candidates each
// row was scored against, for the review UI
type ValidateResponse struct {
	Matches []RowMatch `json:"matches"`
	Total   int        `json:"total"`
}
