package staging

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/sneakly/catalog/pkg/source"
	"gorm.io/datatypes"
)

type Outcome string

const (
	OutcomeStagedNew     Outcome = "staged_new"
	OutcomeUpdated       Outcome = "updated"
	OutcomeRefreshRouted Outcome = "refresh_routed"
)

// MatchResult reports how one raw record was resolved.
type MatchResult struct {
	Outcome     Outcome
	CandidateID string
	ProductID   string
	// SimilarTo names an existing candidate whose brand/model scored above
	// the fuzzy threshold. Advisory only; nothing is merged automatically.
	SimilarTo string
}

// CandidateStore is the slice of the staging repository the matcher needs.
type CandidateStore interface {
	FindByKey(ctx context.Context, domain, sourceURL string) (*CandidateProduct, error)
	FindByBrand(ctx context.Context, domain, brand string) ([]CandidateProduct, error)
	Upsert(ctx context.Context, c *CandidateProduct) (bool, error)
}

// SourceLinkFinder resolves a source identity to an already-promoted product.
type SourceLinkFinder interface {
	ProductIDForSource(ctx context.Context, domain, sourceURL string) (string, bool, error)
}

// Scorer is the pluggable fuzzy similarity strategy.
type Scorer interface {
	Score(a, b string) float64
}

// Matcher normalizes raw records and decides whether each maps to an existing
// canonical product, an existing candidate, or a new candidate. Exact match on
// (source_domain, source_url) is authoritative; the fuzzy scorer only
// annotates possible relistings.
type Matcher struct {
	candidates CandidateStore
	links      SourceLinkFinder
	fuzzy      Scorer
	threshold  float64
}

func NewMatcher(candidates CandidateStore, links SourceLinkFinder, fuzzy Scorer, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = 0.92
	}
	return &Matcher{candidates: candidates, links: links, fuzzy: fuzzy, threshold: threshold}
}

// Resolve processes one raw record. With dryRun set it reads what it needs to
// classify the record but writes nothing.
func (m *Matcher) Resolve(ctx context.Context, rec source.RawRecord, dryRun bool) (MatchResult, error) {
	candidate, err := Normalize(rec)
	if err != nil {
		return MatchResult{}, err
	}

	if productID, linked, err := m.links.ProductIDForSource(ctx, candidate.SourceDomain, candidate.SourceURL); err != nil {
		return MatchResult{}, err
	} else if linked {
		return MatchResult{Outcome: OutcomeRefreshRouted, ProductID: productID}, nil
	}

	existing, err := m.candidates.FindByKey(ctx, candidate.SourceDomain, candidate.SourceURL)
	if err != nil && !errors.Is(err, pipeline.ErrCandidateNotFound) {
		return MatchResult{}, err
	}

	if dryRun {
		if existing != nil {
			return MatchResult{Outcome: OutcomeUpdated, CandidateID: existing.ID}, nil
		}
		return MatchResult{Outcome: OutcomeStagedNew}, nil
	}

	result := MatchResult{}
	if existing == nil {
		result.SimilarTo = m.similarCandidate(ctx, candidate)
	}

	created, err := m.candidates.Upsert(ctx, candidate)
	if err != nil {
		return MatchResult{}, err
	}

	if created {
		result.Outcome = OutcomeStagedNew
	} else {
		result.Outcome = OutcomeUpdated
	}
	result.CandidateID = candidate.ID
	return result, nil
}

// similarCandidate scans same-brand candidates for a near-identical model
// name, catching re-listed items under a fresh URL.
func (m *Matcher) similarCandidate(ctx context.Context, candidate *CandidateProduct) string {
	if m.fuzzy == nil {
		return ""
	}

	peers, err := m.candidates.FindByBrand(ctx, candidate.SourceDomain, candidate.Brand)
	if err != nil {
		logger.Log.WithError(err).Warn("fuzzy lookup failed, skipping advisory match")
		return ""
	}

	bestID := ""
	bestScore := 0.0
	for _, peer := range peers {
		score := m.fuzzy.Score(peer.ModelName, candidate.ModelName)
		if score > bestScore {
			bestScore = score
			bestID = peer.ID
		}
	}

	if bestScore >= m.threshold {
		logger.Log.WithFields(map[string]interface{}{
			"source":     candidate.SourceDomain,
			"model":      candidate.ModelName,
			"similar_to": bestID,
			"score":      bestScore,
		}).Info("possible relisted product")
		return bestID
	}
	return ""
}

// Normalize validates a raw record and produces the candidate ready for
// staging. Brand and model are lowercased and trimmed; the URL is
// canonicalized so the same listing always yields the same match key.
func Normalize(rec source.RawRecord) (*CandidateProduct, error) {
	domain := strings.TrimSpace(strings.ToLower(rec.SourceDomain))
	if domain == "" {
		return nil, pipeline.ValidationError{Reason: errors.New("record missing source domain")}
	}

	canonical, err := CanonicalizeURL(rec.SourceURL)
	if err != nil {
		return nil, pipeline.ValidationError{Reason: err}
	}

	brand := strings.TrimSpace(strings.ToLower(rec.Brand))
	model := strings.TrimSpace(strings.ToLower(rec.ModelName))
	if model == "" {
		return nil, pipeline.ValidationError{Reason: errors.New("record missing model name")}
	}
	if rec.Price < 0 {
		return nil, pipeline.ValidationError{Reason: errors.New("record has negative price")}
	}

	candidate := &CandidateProduct{
		SourceDomain: domain,
		SourceURL:    canonical,
		Brand:        brand,
		ModelName:    model,
		Color:        strings.TrimSpace(strings.ToLower(rec.Color)),
		Gender:       strings.TrimSpace(strings.ToLower(rec.Gender)),
		CategoryName: strings.TrimSpace(rec.CategoryName),
		Price:        rec.Price,
		Description:  strings.TrimSpace(rec.Description),
	}

	if len(rec.ImageURLs) > 0 {
		if encoded, err := json.Marshal(rec.ImageURLs); err == nil {
			candidate.ImageURLs = datatypes.JSON(encoded)
		}
	}

	return candidate, nil
}

// trackingParams are query parameters stripped during URL canonicalization.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "ref": {}, "tag": {}, "fbclid": {}, "gclid": {},
}

func CanonicalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("record missing source url")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" || parsed.Scheme == "" {
		return "", errors.New("source url missing scheme or host")
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.Scheme == "http" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	} else if parsed.Scheme == "https" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}

	query := parsed.Query()
	for param := range query {
		if _, drop := trackingParams[param]; drop {
			query.Del(param)
		}
	}
	parsed.RawQuery = query.Encode()

	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String(), nil
}
