package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/common/models"
	"github.com/sneakly/catalog/pkg/observability/metrics"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/sneakly/catalog/pkg/staging"
)

type candidateStore interface {
	Get(ctx context.Context, id string) (*staging.CandidateProduct, error)
	Delete(ctx context.Context, id string) error
}

type promotionStore interface {
	GetCategory(ctx context.Context, id string) (*Category, error)
	PromoteCandidate(ctx context.Context, input PromotionInput) (*CatalogProduct, error)
}

type auditSink interface {
	Record(ctx context.Context, action, entity, entityID, severity, actor string, details map[string]interface{})
}

// PromotionService converts staged candidates into canonical catalog entities.
// Always an explicit, human-triggered action; the pipeline never auto-promotes.
type PromotionService struct {
	candidates candidateStore
	store      promotionStore
	auditor    auditSink
}

func NewPromotionService(candidates candidateStore, store promotionStore, auditor auditSink) *PromotionService {
	return &PromotionService{candidates: candidates, store: store, auditor: auditor}
}

func (s *PromotionService) Promote(ctx context.Context, candidateID, categoryID string, variants []models.VariantRequest, actor string) (*CatalogProduct, error) {
	candidate, err := s.candidates.Get(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return nil, pipeline.ValidationError{Reason: fmt.Errorf("category %s does not exist", categoryID)}
		}
		return nil, err
	}

	validated, err := validateVariants(variants)
	if err != nil {
		return nil, err
	}

	product, err := s.store.PromoteCandidate(ctx, PromotionInput{
		Candidate:  candidate,
		CategoryID: categoryID,
		Variants:   validated,
	})
	if err != nil {
		return nil, err
	}

	metrics.Promotion()
	s.auditor.Record(ctx, "candidate.promoted", "catalog_product", product.ID, "info", actor, map[string]interface{}{
		"candidate_id":  candidateID,
		"source_domain": candidate.SourceDomain,
		"source_url":    candidate.SourceURL,
		"category_id":   categoryID,
		"variant_count": len(validated),
	})

	logger.Log.WithFields(map[string]interface{}{
		"candidate_id": candidateID,
		"product_id":   product.ID,
		"actor":        actor,
	}).Info("candidate promoted")

	return product, nil
}

func (s *PromotionService) Reject(ctx context.Context, candidateID, actor string) error {
	candidate, err := s.candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}

	if err := s.candidates.Delete(ctx, candidateID); err != nil {
		return err
	}

	s.auditor.Record(ctx, "candidate.rejected", "candidate_product", candidateID, "info", actor, map[string]interface{}{
		"source_domain": candidate.SourceDomain,
		"source_url":    candidate.SourceURL,
	})
	return nil
}

// validateVariants requires at least one well-formed variant: the size must
// be numeric and stock non-negative.
func validateVariants(requests []models.VariantRequest) ([]ProductVariant, error) {
	if len(requests) == 0 {
		return nil, pipeline.ValidationError{Reason: errors.New("at least one variant required")}
	}

	variants := make([]ProductVariant, 0, len(requests))
	for _, req := range requests {
		size := strings.TrimSpace(req.Size)
		if _, err := strconv.ParseFloat(size, 64); err != nil {
			return nil, pipeline.ValidationError{Reason: fmt.Errorf("variant size %q is not numeric", req.Size)}
		}
		if req.Stock < 0 {
			return nil, pipeline.ValidationError{Reason: fmt.Errorf("variant size %s has negative stock", size)}
		}
		variants = append(variants, ProductVariant{Size: size, Stock: req.Stock})
	}
	return variants, nil
}
