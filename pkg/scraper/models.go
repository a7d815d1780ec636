package scraper

import "time"

const (
	ModeDiscovery       = "discovery"
	ModeTargetedRefresh = "targeted_refresh"
)

// Run is one discovery or targeted-refresh execution. The scheduler is its
// sole writer; once the status is terminal no field changes are accepted.
type Run struct {
	ID              string     `json:"id" gorm:"primaryKey;column:id"`
	SourceDomain    string     `json:"source_domain" gorm:"column:source_domain;index"`
	Mode            string     `json:"mode" gorm:"column:mode"`
	Status          Status     `json:"status" gorm:"column:status;index"`
	IsDryRun        bool       `json:"is_dry_run" gorm:"column:is_dry_run"`
	LimitSet        *int       `json:"limit_set,omitempty" gorm:"column:limit_set"`
	StartedAt       time.Time  `json:"started_at" gorm:"column:started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	DurationSeconds float64    `json:"duration_seconds" gorm:"column:duration_seconds"`
	ProductsFound   int        `json:"products_found" gorm:"column:products_found"`
	ProductsAdded   int        `json:"products_added" gorm:"column:products_added"`
	ErrorCount      int        `json:"error_count" gorm:"column:error_count"`
	ErrorMessage    string     `json:"error_message,omitempty" gorm:"column:error_message"`
	UserID          string     `json:"user_id" gorm:"column:user_id"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (Run) TableName() string {
	return "scraper_runs"
}
