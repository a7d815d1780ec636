package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/sneakly/catalog/pkg/source"
	"github.com/sneakly/catalog/pkg/staging"
	"gorm.io/gorm"
)

type RefreshFields string

const (
	RefreshPrice RefreshFields = "price"
	RefreshStock RefreshFields = "stock"
	RefreshBoth  RefreshFields = "both"
)

func (f RefreshFields) includesPrice() bool {
	return f == RefreshPrice || f == RefreshBoth
}

func (f RefreshFields) includesStock() bool {
	return f == RefreshStock || f == RefreshBoth
}

func ParseRefreshFields(raw string) (RefreshFields, error) {
	switch RefreshFields(raw) {
	case RefreshPrice, RefreshStock, RefreshBoth:
		return RefreshFields(raw), nil
	case "":
		return RefreshBoth, nil
	default:
		return "", pipeline.ValidationError{Reason: fmt.Errorf("unknown refresh fields %q", raw)}
	}
}

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrProductNotFound  = errors.New("catalog product not found")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&Category{},
		&CatalogProduct{},
		&ProductVariant{},
		&ProductImage{},
		&ProductSourceLink{},
	)
}

func (r *Repository) GetCategory(ctx context.Context, id string) (*Category, error) {
	var c Category
	result := r.db.WithContext(ctx).First(&c, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	return &c, result.Error
}

// ProductIDForSource implements the matcher's source-link lookup.
func (r *Repository) ProductIDForSource(ctx context.Context, domain, sourceURL string) (string, bool, error) {
	var link ProductSourceLink
	result := r.db.WithContext(ctx).
		Where("source_domain = ? AND source_url = ?", domain, sourceURL).
		First(&link)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if result.Error != nil {
		return "", false, result.Error
	}
	return link.ProductID, true, nil
}

// LinkedSources maps product ids to their source URLs for one domain.
func (r *Repository) LinkedSources(ctx context.Context, domain string, productIDs []string) (map[string]string, error) {
	var links []ProductSourceLink
	err := r.db.WithContext(ctx).
		Where("source_domain = ? AND product_id IN ?", domain, productIDs).
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string]string, len(links))
	for _, link := range links {
		byProduct[link.ProductID] = link.SourceURL
	}
	return byProduct, nil
}

// PromotionInput is everything the promotion transaction writes.
type PromotionInput struct {
	Candidate  *staging.CandidateProduct
	CategoryID string
	Variants   []ProductVariant
}

// PromoteCandidate atomically creates the product, its variants, images from
// the staged image urls, and the source link, and removes the candidate from
// staging. Any failure rolls the whole promotion back.
func (r *Repository) PromoteCandidate(ctx context.Context, input PromotionInput) (*CatalogProduct, error) {
	now := time.Now().UTC()
	product := &CatalogProduct{
		ID:          uuid.New().String(),
		CategoryID:  input.CategoryID,
		Brand:       input.Candidate.Brand,
		ModelName:   input.Candidate.ModelName,
		Color:       input.Candidate.Color,
		Gender:      input.Candidate.Gender,
		Price:       input.Candidate.Price,
		Description: input.Candidate.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			return err
		}

		for i := range input.Variants {
			variant := input.Variants[i]
			variant.ID = uuid.New().String()
			variant.ProductID = product.ID
			variant.CreatedAt = now
			variant.UpdatedAt = now
			if err := tx.Create(&variant).Error; err != nil {
				return err
			}
		}

		for i, url := range stagedImageURLs(input.Candidate) {
			image := &ProductImage{
				ID:        uuid.New().String(),
				ProductID: product.ID,
				URL:       url,
				Position:  i,
				CreatedAt: now,
			}
			if err := tx.Create(image).Error; err != nil {
				return err
			}
		}

		link := &ProductSourceLink{
			ID:           uuid.New().String(),
			ProductID:    product.ID,
			SourceDomain: input.Candidate.SourceDomain,
			SourceURL:    input.Candidate.SourceURL,
			CreatedAt:    now,
		}
		if err := tx.Create(link).Error; err != nil {
			return err
		}

		return tx.Delete(&staging.CandidateProduct{}, "id = ?", input.Candidate.ID).Error
	})
	if err != nil {
		return nil, pipeline.ConsistencyError{Err: err}
	}

	return product, nil
}

// ApplyRefresh writes only the requested fields and returns the previous and
// new values per mutated field for the audit trail. Fields the pipeline does
// not own (description, images) are never touched here.
func (r *Repository) ApplyRefresh(ctx context.Context, productID string, fields RefreshFields, res *source.RefreshResult) (map[string]interface{}, error) {
	changes := make(map[string]interface{})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product CatalogProduct
		result := tx.First(&product, "id = ?", productID)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		if result.Error != nil {
			return result.Error
		}

		now := time.Now().UTC()

		if fields.includesPrice() && res.Price != nil && *res.Price != product.Price {
			if err := tx.Model(&CatalogProduct{}).Where("id = ?", productID).
				Updates(map[string]interface{}{"price": *res.Price, "updated_at": now}).Error; err != nil {
				return err
			}
			changes["price"] = map[string]interface{}{"previous": product.Price, "new": *res.Price}
		}

		if fields.includesStock() {
			stockChanges := make(map[string]interface{})
			for _, size := range res.Sizes {
				if size.Stock < 0 {
					continue
				}
				var variant ProductVariant
				result := tx.Where("product_id = ? AND size = ?", productID, size.Size).First(&variant)
				if errors.Is(result.Error, gorm.ErrRecordNotFound) {
					continue
				}
				if result.Error != nil {
					return result.Error
				}
				if variant.Stock == size.Stock {
					continue
				}
				if err := tx.Model(&ProductVariant{}).Where("id = ?", variant.ID).
					Updates(map[string]interface{}{"stock": size.Stock, "updated_at": now}).Error; err != nil {
					return err
				}
				stockChanges[size.Size] = map[string]interface{}{"previous": variant.Stock, "new": size.Stock}
			}
			if len(stockChanges) > 0 {
				changes["stock"] = stockChanges
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*CatalogProduct, []ProductVariant, error) {
	var product CatalogProduct
	result := r.db.WithContext(ctx).First(&product, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil, ErrProductNotFound
	}
	if result.Error != nil {
		return nil, nil, result.Error
	}

	var variants []ProductVariant
	if err := r.db.WithContext(ctx).Where("product_id = ?", id).Find(&variants).Error; err != nil {
		return nil, nil, err
	}
	return &product, variants, nil
}

func stagedImageURLs(candidate *staging.CandidateProduct) []string {
	if len(candidate.ImageURLs) == 0 {
		return nil
	}
	var urls []string
	if err := json.Unmarshal(candidate.ImageURLs, &urls); err != nil {
		return nil
	}
	return urls
}
