package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sneakly/catalog/pkg/pipeline"
)

// Registry holds the closed set of adapters, one per marketplace, resolved at
// startup. Source selection never goes through runtime string dispatch beyond
// this map.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		domain := strings.TrimSpace(strings.ToLower(a.Domain()))
		if domain == "" {
			return nil, fmt.Errorf("adapter with empty domain")
		}
		if _, exists := m[domain]; exists {
			return nil, fmt.Errorf("duplicate adapter for domain %s", domain)
		}
		m[domain] = a
	}
	return &Registry{adapters: m}, nil
}

func (r *Registry) Resolve(domain string) (Adapter, error) {
	a, ok := r.adapters[strings.TrimSpace(strings.ToLower(domain))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrUnknownSource, domain)
	}
	return a, nil
}

func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.adapters))
	for d := range r.adapters {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
