package staging

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/sneakly/catalog/pkg/source"
)

func TestMain(m *testing.M) {
	logger.Init("staging-test")
	os.Exit(m.Run())
}

type memCandidateStore struct {
	byKey   map[string]*CandidateProduct
	upserts int
}

func newMemCandidateStore() *memCandidateStore {
	return &memCandidateStore{byKey: make(map[string]*CandidateProduct)}
}

func key(domain, sourceURL string) string {
	return domain + "|" + sourceURL
}

func (s *memCandidateStore) FindByKey(ctx context.Context, domain, sourceURL string) (*CandidateProduct, error) {
	if c, ok := s.byKey[key(domain, sourceURL)]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, pipeline.ErrCandidateNotFound
}

func (s *memCandidateStore) FindByBrand(ctx context.Context, domain, brand string) ([]CandidateProduct, error) {
	out := []CandidateProduct{}
	for _, c := range s.byKey {
		if c.SourceDomain == domain && c.Brand == brand {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memCandidateStore) Upsert(ctx context.Context, c *CandidateProduct) (bool, error) {
	s.upserts++
	k := key(c.SourceDomain, c.SourceURL)
	if existing, ok := s.byKey[k]; ok {
		c.ID = existing.ID
		s.byKey[k] = c
		return false, nil
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	s.byKey[k] = c
	return true, nil
}

type memLinks struct {
	links map[string]string
}

func (l *memLinks) ProductIDForSource(ctx context.Context, domain, sourceURL string) (string, bool, error) {
	id, ok := l.links[key(domain, sourceURL)]
	return id, ok, nil
}

func sample() source.RawRecord {
	return source.RawRecord{
		SourceDomain: "fnac.com",
		SourceURL:    "https://www.fnac.com/sneakers/air-max-90?utm_source=mail&size=42",
		Brand:        "Nike",
		ModelName:    "Air Max 90",
		Color:        "White",
		Gender:       "Men",
		Price:        139.99,
	}
}

func TestResolveStagesNewCandidate(t *testing.T) {
	store := newMemCandidateStore()
	m := NewMatcher(store, &memLinks{}, JaroWinkler{}, 0.92)

	result, err := m.Resolve(context.Background(), sample(), false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result.Outcome != OutcomeStagedNew {
		t.Fatalf("expected staged_new, got %s", result.Outcome)
	}
	if result.CandidateID == "" {
		t.Fatal("expected a candidate id")
	}
}

func TestResolveSameListingUpdatesInPlace(t *testing.T) {
	store := newMemCandidateStore()
	m := NewMatcher(store, &memLinks{}, JaroWinkler{}, 0.92)
	ctx := context.Background()

	first, err := m.Resolve(ctx, sample(), false)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	// same listing with tracking noise and a new price
	rec := sample()
	rec.SourceURL = "https://www.FNAC.com/sneakers/air-max-90?size=42&utm_campaign=promo#reviews"
	rec.Price = 119.99

	second, err := m.Resolve(ctx, rec, false)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if second.Outcome != OutcomeUpdated {
		t.Fatalf("expected updated, got %s", second.Outcome)
	}
	if second.CandidateID != first.CandidateID {
		t.Fatalf("expected the same candidate, got %s vs %s", second.CandidateID, first.CandidateID)
	}
	if len(store.byKey) != 1 {
		t.Fatalf("expected one stored candidate, got %d", len(store.byKey))
	}
}

// staleReadStore never sees a candidate on lookup, so the matcher always
// takes the insert path and the store resolves any collision as an update.
type staleReadStore struct {
	inner *memCandidateStore
}

func (s *staleReadStore) FindByKey(ctx context.Context, domain, sourceURL string) (*CandidateProduct, error) {
	return nil, pipeline.ErrCandidateNotFound
}

func (s *staleReadStore) FindByBrand(ctx context.Context, domain, brand string) ([]CandidateProduct, error) {
	return s.inner.FindByBrand(ctx, domain, brand)
}

func (s *staleReadStore) Upsert(ctx context.Context, c *CandidateProduct) (bool, error) {
	return s.inner.Upsert(ctx, c)
}

func TestResolveLostInsertRaceCountsAsUpdate(t *testing.T) {
	inner := newMemCandidateStore()
	ctx := context.Background()

	first, err := NewMatcher(inner, &memLinks{}, nil, 0).Resolve(ctx, sample(), false)
	if err != nil {
		t.Fatalf("seed resolve failed: %v", err)
	}

	// a concurrent worker staged the same listing between the lookup and
	// the insert
	m := NewMatcher(&staleReadStore{inner: inner}, &memLinks{}, nil, 0)
	result, err := m.Resolve(ctx, sample(), false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result.Outcome != OutcomeUpdated {
		t.Fatalf("expected updated after losing the insert race, got %s", result.Outcome)
	}
	if result.CandidateID != first.CandidateID {
		t.Fatalf("expected the winner's candidate id %s, got %s", first.CandidateID, result.CandidateID)
	}
	if len(inner.byKey) != 1 {
		t.Fatalf("expected one stored candidate, got %d", len(inner.byKey))
	}
}

func TestResolveRoutesPromotedProductToRefresh(t *testing.T) {
	store := newMemCandidateStore()
	rec := sample()
	canonical, err := CanonicalizeURL(rec.SourceURL)
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	links := &memLinks{links: map[string]string{key("fnac.com", canonical): "prod-42"}}
	m := NewMatcher(store, links, JaroWinkler{}, 0.92)

	result, err := m.Resolve(context.Background(), rec, false)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if result.Outcome != OutcomeRefreshRouted {
		t.Fatalf("expected refresh_routed, got %s", result.Outcome)
	}
	if result.ProductID != "prod-42" {
		t.Fatalf("expected prod-42, got %s", result.ProductID)
	}
	if store.upserts != 0 {
		t.Fatal("promoted listing must not be re-staged")
	}
}

func TestResolveDryRunWritesNothing(t *testing.T) {
	store := newMemCandidateStore()
	m := NewMatcher(store, &memLinks{}, JaroWinkler{}, 0.92)

	result, err := m.Resolve(context.Background(), sample(), true)
	if err != nil {
		t.Fatalf("dry-run resolve failed: %v", err)
	}
	if result.Outcome != OutcomeStagedNew {
		t.Fatalf("expected staged_new classification, got %s", result.Outcome)
	}
	if store.upserts != 0 {
		t.Fatalf("dry run performed %d upserts", store.upserts)
	}
}

func TestResolveFlagsSimilarModel(t *testing.T) {
	store := newMemCandidateStore()
	m := NewMatcher(store, &memLinks{}, JaroWinkler{}, 0.92)
	ctx := context.Background()

	first, err := m.Resolve(ctx, sample(), false)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	// near-identical model under a different URL
	rec := sample()
	rec.SourceURL = "https://www.fnac.com/sneakers/air-max-90-relisted"
	rec.ModelName = "Air Max 90 "

	second, err := m.Resolve(ctx, rec, false)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if second.Outcome != OutcomeStagedNew {
		t.Fatalf("expected a new candidate, got %s", second.Outcome)
	}
	if second.SimilarTo != first.CandidateID {
		t.Fatalf("expected advisory match to %s, got %q", first.CandidateID, second.SimilarTo)
	}
}

func TestNormalizeRejectsBadRecords(t *testing.T) {
	bad := []source.RawRecord{
		{SourceURL: "https://fnac.com/p/1", ModelName: "Air Max"},
		{SourceDomain: "fnac.com", ModelName: "Air Max"},
		{SourceDomain: "fnac.com", SourceURL: "https://fnac.com/p/1"},
		{SourceDomain: "fnac.com", SourceURL: "https://fnac.com/p/1", ModelName: "Air Max", Price: -1},
		{SourceDomain: "fnac.com", SourceURL: "not a url", ModelName: "Air Max"},
	}
	for i, rec := range bad {
		if _, err := Normalize(rec); !pipeline.IsValidationError(err) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestNormalizeLowercasesIdentity(t *testing.T) {
	candidate, err := Normalize(sample())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if candidate.Brand != "nike" || candidate.ModelName != "air max 90" {
		t.Fatalf("expected lowercased identity, got %q / %q", candidate.Brand, candidate.ModelName)
	}
	if candidate.Color != "white" || candidate.Gender != "men" {
		t.Fatalf("expected lowercased attributes, got %q / %q", candidate.Color, candidate.Gender)
	}
}

func TestCanonicalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://WWW.Fnac.com/Sneakers/Air?utm_source=x&size=42#frag", "https://www.fnac.com/Sneakers/Air?size=42"},
		{"https://fnac.com:443/p/1", "https://fnac.com/p/1"},
		{"http://fnac.com:80/p/1/", "http://fnac.com/p/1"},
		{"https://fnac.com/p/1?ref=aff&tag=x&gclid=abc", "https://fnac.com/p/1"},
	}
	for _, c := range cases {
		got, err := CanonicalizeURL(c.in)
		if err != nil {
			t.Fatalf("canonicalize(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestJaroWinklerOrdering(t *testing.T) {
	jw := JaroWinkler{}
	same := jw.Score("air max 90", "air max 90")
	if same != 1.0 {
		t.Fatalf("identical strings should score 1.0, got %f", same)
	}
	near := jw.Score("air max 90", "air max 95")
	far := jw.Score("air max 90", "gel lyte iii")
	if near <= far {
		t.Fatalf("expected %f > %f", near, far)
	}
	if jw.Score("", "air max") != 0 {
		t.Fatal("empty string should score 0")
	}
}
