package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sneakly/catalog/pkg/common/models"
	"github.com/sneakly/catalog/pkg/pipeline"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Run{})
}

func (r *Repository) Create(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	result := r.db.WithContext(ctx).First(&run, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, pipeline.ErrRunNotFound
	}
	return &run, result.Error
}

// FindActive returns the non-terminal run for a domain, or nil.
func (r *Repository) FindActive(ctx context.Context, domain string) (*Run, error) {
	var run Run
	result := r.db.WithContext(ctx).
		Where("source_domain = ? AND status IN ?", domain, []Status{StatusPending, StatusRunning}).
		First(&run)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &run, nil
}

// Transition moves a run between states. The state machine is validated
// first, then enforced again in the database by guarding on the current
// status, so a terminal run can never be mutated even under races.
func (r *Repository) Transition(ctx context.Context, id string, from, to Status, updates map[string]interface{}) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}

	if updates == nil {
		updates = make(map[string]interface{})
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&Run{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run %s is no longer in status %s", id, from)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter models.RunFilter) ([]Run, error) {
	query := r.db.WithContext(ctx).Order("started_at DESC").Limit(100)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Source != "" {
		query = query.Where("source_domain = ?", filter.Source)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("source_domain ILIKE ? OR error_message ILIKE ?", pattern, pattern)
	}
	var runs []Run
	err := query.Find(&runs).Error
	return runs, err
}

// FindStale returns non-terminal runs untouched since the cutoff. The janitor
// fails these after a crash so their domains are not locked forever.
func (r *Repository) FindStale(ctx context.Context, cutoff time.Time) ([]Run, error) {
	var runs []Run
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []Status{StatusPending, StatusRunning}, cutoff).
		Find(&runs).Error
	return runs, err
}
