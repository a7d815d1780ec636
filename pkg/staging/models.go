package staging

import (
	"time"

	"gorm.io/datatypes"
)

// CandidateProduct is a scraped record waiting for human promotion. Identity
// is (source_domain, source_url); a second sighting updates in place.
type CandidateProduct struct {
	ID           string         `json:"id" gorm:"primaryKey;column:id"`
	SourceDomain string         `json:"source_domain" gorm:"column:source_domain;uniqueIndex:idx_candidate_source_identity"`
	SourceURL    string         `json:"source_url" gorm:"column:source_url;uniqueIndex:idx_candidate_source_identity"`
	Brand        string         `json:"brand" gorm:"column:brand"`
	ModelName    string         `json:"model_name" gorm:"column:model_name"`
	Color        string         `json:"color" gorm:"column:color"`
	Gender       string         `json:"gender" gorm:"column:gender"`
	CategoryName string         `json:"category_name" gorm:"column:category_name"`
	Price        float64        `json:"price" gorm:"column:price"`
	Description  string         `json:"description" gorm:"column:description"`
	ImageURLs    datatypes.JSON `json:"image_urls,omitempty" gorm:"column:image_urls"`
	ValidatedAt  time.Time      `json:"validated_at" gorm:"column:validated_at"`
	CreatedAt    time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (CandidateProduct) TableName() string {
	return "candidate_products"
}
