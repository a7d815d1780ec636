package catalog

import "time"

// Canonical entities. Created by promotion; price/stock fields later mutated
// by targeted refresh, everything else by catalog-management collaborators
// outside this repository.

type CatalogProduct struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	CategoryID  string    `json:"category_id" gorm:"column:category_id;index"`
	Brand       string    `json:"brand" gorm:"column:brand"`
	ModelName   string    `json:"model_name" gorm:"column:model_name"`
	Color       string    `json:"color" gorm:"column:color"`
	Gender      string    `json:"gender" gorm:"column:gender"`
	Price       float64   `json:"price" gorm:"column:price"`
	Description string    `json:"description" gorm:"column:description"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (CatalogProduct) TableName() string {
	return "catalog_products"
}

// ProductVariant belongs to exactly one product. Stock never goes negative.
type ProductVariant struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	ProductID string    `json:"product_id" gorm:"column:product_id;index"`
	Size      string    `json:"size" gorm:"column:size"`
	Stock     int       `json:"stock" gorm:"column:stock"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}

type ProductImage struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	ProductID string    `json:"product_id" gorm:"column:product_id;index"`
	URL       string    `json:"url" gorm:"column:url"`
	Position  int       `json:"position" gorm:"column:position"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (ProductImage) TableName() string {
	return "product_images"
}

// Category is owned by catalog management; the pipeline only validates
// against it during promotion.
type Category struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"column:name"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Category) TableName() string {
	return "categories"
}

// ProductSourceLink ties a promoted product back to its source identity so
// discovery can route re-sightings to the refresh path instead of staging.
type ProductSourceLink struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	ProductID    string    `json:"product_id" gorm:"column:product_id;index"`
	SourceDomain string    `json:"source_domain" gorm:"column:source_domain;uniqueIndex:idx_link_source_identity"`
	SourceURL    string    `json:"source_url" gorm:"column:source_url;uniqueIndex:idx_link_source_identity"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
}

func (ProductSourceLink) TableName() string {
	return "product_source_links"
}
