package models

import "time"

// Control surface payloads. Consumed by the admin UI, which is not part of
// this repository.

type StartRunRequest struct {
	SourceDomain string `json:"source_domain"`
	Mode         string `json:"mode,omitempty"` // discovery (default) | targeted_refresh
	Limit        *int   `json:"limit,omitempty"`
	DryRun       bool   `json:"dry_run"`
}

type StartRunResponse struct {
	RunID        string    `json:"run_id"`
	SourceDomain string    `json:"source_domain"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
}

type RefreshRequest struct {
	SourceDomain string   `json:"source_domain"`
	ProductIDs   []string `json:"product_ids"`
	Fields       string   `json:"fields"` // price | stock | both
}

type RunFilter struct {
	Status string
	Source string
	Search string
}

type PromoteRequest struct {
	CategoryID string           `json:"category_id"`
	Variants   []VariantRequest `json:"variants"`
}

type VariantRequest struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// RunEvent is the Kafka payload published when a run reaches a terminal state.
type RunEvent struct {
	RunID         string     `json:"run_id"`
	SourceDomain  string     `json:"source_domain"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	IsDryRun      bool       `json:"is_dry_run"`
	ProductsFound int        `json:"products_found"`
	ProductsAdded int        `json:"products_added"`
	ErrorCount    int        `json:"error_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
