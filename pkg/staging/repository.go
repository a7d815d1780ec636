package staging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sneakly/catalog/pkg/pipeline"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&CandidateProduct{})
}

func (r *Repository) FindByKey(ctx context.Context, domain, sourceURL string) (*CandidateProduct, error) {
	var c CandidateProduct
	result := r.db.WithContext(ctx).
		Where("source_domain = ? AND source_url = ?", domain, sourceURL).
		First(&c)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, pipeline.ErrCandidateNotFound
	}
	return &c, result.Error
}

func (r *Repository) Get(ctx context.Context, id string) (*CandidateProduct, error) {
	var c CandidateProduct
	result := r.db.WithContext(ctx).First(&c, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, pipeline.ErrCandidateNotFound
	}
	return &c, result.Error
}

// Upsert stages a candidate. The unique constraint on (source_domain,
// source_url) is the authoritative guard under concurrent workers: a losing
// insert degrades to an update of the scraped fields. Returns whether a new
// row was created.
func (r *Repository) Upsert(ctx context.Context, c *CandidateProduct) (bool, error) {
	existing, err := r.FindByKey(ctx, c.SourceDomain, c.SourceURL)
	if err != nil && !errors.Is(err, pipeline.ErrCandidateNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	c.ValidatedAt = now
	c.UpdatedAt = now

	if existing != nil {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		return false, r.db.WithContext(ctx).Model(&CandidateProduct{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"brand":         c.Brand,
				"model_name":    c.ModelName,
				"color":         c.Color,
				"gender":        c.Gender,
				"category_name": c.CategoryName,
				"price":         c.Price,
				"description":   c.Description,
				"image_urls":    c.ImageURLs,
				"validated_at":  now,
				"updated_at":    now,
			}).Error
	}

	insertID := uuid.New().String()
	c.ID = insertID
	c.CreatedAt = now
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_domain"}, {Name: "source_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"brand", "model_name", "color", "gender", "category_name",
			"price", "description", "image_urls", "validated_at", "updated_at",
		}),
	}, clause.Returning{
		Columns: []clause.Column{{Name: "id"}, {Name: "created_at"}},
	}).Create(c).Error
	if err != nil {
		return false, err
	}
	// a lost insert race resolves as an update of the winner's row; RETURNING
	// hands back that row's id
	return c.ID == insertID, nil
}

func (r *Repository) FindByBrand(ctx context.Context, domain, brand string) ([]CandidateProduct, error) {
	var rows []CandidateProduct
	err := r.db.WithContext(ctx).
		Where("source_domain = ? AND brand = ?", domain, brand).
		Limit(50).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) List(ctx context.Context, domain string, limit int) ([]CandidateProduct, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("validated_at DESC").Limit(limit)
	if domain != "" {
		query = query.Where("source_domain = ?", domain)
	}
	var rows []CandidateProduct
	err := query.Find(&rows).Error
	return rows, err
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&CandidateProduct{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pipeline.ErrCandidateNotFound
	}
	return nil
}
