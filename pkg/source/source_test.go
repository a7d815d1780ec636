package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/pipeline"
)

func TestMain(m *testing.M) {
	logger.Init("source-test")
	os.Exit(m.Run())
}

type staticAdapter struct {
	domain string
}

func (a staticAdapter) Domain() string       { return a.domain }
func (a staticAdapter) DiscoveryURL() string { return "https://" + a.domain }
func (a staticAdapter) Discover(ctx context.Context) (RecordIterator, error) {
	return nil, errors.New("not implemented")
}
func (a staticAdapter) Refresh(ctx context.Context, sourceURL string) (*RefreshResult, error) {
	return nil, errors.New("not implemented")
}

func TestRegistryResolvesKnownDomains(t *testing.T) {
	registry, err := NewRegistry(staticAdapter{domain: "fnac.com"}, staticAdapter{domain: "amazon.fr"})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	adapter, err := registry.Resolve("fnac.com")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if adapter.Domain() != "fnac.com" {
		t.Fatalf("resolved wrong adapter: %s", adapter.Domain())
	}

	_, err = registry.Resolve("zalando.fr")
	if !errors.Is(err, pipeline.ErrUnknownSource) {
		t.Fatalf("expected unknown source, got %v", err)
	}

	domains := registry.Domains()
	if len(domains) != 2 || domains[0] != "amazon.fr" || domains[1] != "fnac.com" {
		t.Fatalf("expected sorted domains, got %v", domains)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(staticAdapter{domain: "fnac.com"}, staticAdapter{domain: "fnac.com"})
	if err == nil {
		t.Fatal("expected duplicate domain to be rejected")
	}

	_, err = NewRegistry(staticAdapter{domain: ""})
	if err == nil {
		t.Fatal("expected empty domain to be rejected")
	}
}

func TestDefaultPolicyCoversKnownSources(t *testing.T) {
	policy := DefaultPolicy()
	for _, domain := range []string{"amazon.fr", "fnac.com", "cdiscount.com"} {
		cfg, ok := policy.ForDomain(domain)
		if !ok {
			t.Fatalf("missing default policy for %s", domain)
		}
		if cfg.ListingURL == "" || cfg.Selectors.Item == "" || cfg.Selectors.Price == "" {
			t.Fatalf("incomplete default policy for %s: %+v", domain, cfg)
		}
		if cfg.Selectors.Stock == "" {
			t.Fatalf("default policy for %s cannot collect stock on refresh", domain)
		}
		if cfg.Workers <= 0 || cfg.MinIntervalMS <= 0 {
			t.Fatalf("default policy for %s missing pacing bounds", domain)
		}
	}
}

func TestForDomainLooseMatch(t *testing.T) {
	policy := DefaultPolicy()
	cfg, ok := policy.ForDomain("amazon")
	if !ok || cfg.Domain != "amazon.fr" {
		t.Fatalf("expected amazon to resolve amazon.fr, got %+v ok=%v", cfg, ok)
	}
	if _, ok := policy.ForDomain("zalando.fr"); ok {
		t.Fatal("unknown domain must not match")
	}
}

func TestLoadPolicyFromFile(t *testing.T) {
	content := `sources:
  - domain: fnac.com
    listing_url: https://www.fnac.com/chaussures/sneakers
    workers: 2
    min_interval_ms: 750
    selectors:
      item: article.Article-item
      link: a.Article-title
      model: .Article-title
      price: .userPrice
`
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	cfg, ok := policy.ForDomain("fnac.com")
	if !ok {
		t.Fatal("loaded policy missing fnac.com")
	}
	if cfg.Workers != 2 || cfg.MinIntervalMS != 750 {
		t.Fatalf("pacing not loaded: %+v", cfg)
	}
	if cfg.Selectors.Price != ".userPrice" {
		t.Fatalf("selectors not loaded: %+v", cfg.Selectors)
	}
}

func TestLoadPolicyEmptyPathFallsBack(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("empty path should fall back to defaults: %v", err)
	}
	if len(policy.Sources) == 0 {
		t.Fatal("fallback policy has no sources")
	}
}

func TestParsePrice(t *testing.T) {
	cases := map[string]float64{
		"129,99 €":  129.99,
		"€ 89,00":   89.0,
		"119.95":    119.95,
		"$75":       75,
		" 139,99 €": 139.99,
	}
	for raw, want := range cases {
		got, err := parsePrice(raw)
		if err != nil {
			t.Fatalf("parsePrice(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parsePrice(%q) = %f, want %f", raw, got, want)
		}
	}

	for _, raw := range []string{"", "gratuit", "-10,00 €"} {
		if _, err := parsePrice(raw); err == nil {
			t.Fatalf("parsePrice(%q) should fail", raw)
		}
	}
}

func TestClassifyVisitError(t *testing.T) {
	base := errors.New("http error")
	if !pipeline.IsAdapterError(classifyVisitError("fnac.com", "https://fnac.com/p/1", 403, base)) {
		t.Fatal("403 should be an adapter failure")
	}
	if !pipeline.IsParseError(classifyVisitError("fnac.com", "https://fnac.com/p/1", 404, base)) {
		t.Fatal("404 should be a per-record parse error")
	}
	if !pipeline.IsNetworkError(classifyVisitError("fnac.com", "https://fnac.com/p/1", 503, base)) {
		t.Fatal("503 should be transient")
	}
	if !pipeline.IsNetworkError(classifyVisitError("fnac.com", "https://fnac.com/p/1", 0, base)) {
		t.Fatal("transport failure should be transient")
	}
}

var _ Adapter = (*CollyAdapter)(nil)

func TestRefreshCollectsPriceAndStock(t *testing.T) {
	page := `<html><body>
<span class="price">129,99 €</span>
<div class="stockState" data-size="42" data-stock="3"></div>
<div class="stockState" data-size="43"></div>
</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	// stock selector configured without a size selector, like the defaults
	cfg := SourceConfig{
		Domain: "127.0.0.1",
		Selectors: Selectors{
			Price: ".price",
			Stock: ".stockState",
		},
	}
	adapter := NewCollyAdapter(cfg, "sneakly-catalog-bot/1.0", 5*time.Second)

	result, err := adapter.Refresh(context.Background(), server.URL+"/p/air-max-90")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if result.Price == nil || *result.Price != 129.99 {
		t.Fatalf("expected price 129.99, got %v", result.Price)
	}
	if len(result.Sizes) != 2 {
		t.Fatalf("expected 2 sizes, got %v", result.Sizes)
	}
	if result.Sizes[0].Size != "42" || result.Sizes[0].Stock != 3 {
		t.Fatalf("unexpected first size: %+v", result.Sizes[0])
	}
	if result.Sizes[1].Size != "43" || result.Sizes[1].Stock != 0 {
		t.Fatalf("unexpected second size: %+v", result.Sizes[1])
	}
}

func TestCollyAdapterIdentity(t *testing.T) {
	cfg, _ := DefaultPolicy().ForDomain("fnac.com")
	adapter := NewCollyAdapter(cfg, "sneakly-catalog-bot/1.0", 10*time.Second)
	if adapter.Domain() != "fnac.com" {
		t.Fatalf("unexpected domain %s", adapter.Domain())
	}
	if adapter.DiscoveryURL() != cfg.ListingURL {
		t.Fatalf("discovery url should be the listing url, got %s", adapter.DiscoveryURL())
	}
}
