package source

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Selectors locate product fields on a marketplace's listing markup.
type Selectors struct {
	Item        string `yaml:"item" json:"item"`
	Link        string `yaml:"link" json:"link"`
	Brand       string `yaml:"brand" json:"brand"`
	Model       string `yaml:"model" json:"model"`
	Color       string `yaml:"color" json:"color"`
	Gender      string `yaml:"gender" json:"gender"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description"`
	Price       string `yaml:"price" json:"price"`
	Image       string `yaml:"image" json:"image"`
	NextPage    string `yaml:"next_page" json:"next_page"`
	Size        string `yaml:"size" json:"size"`
	Stock       string `yaml:"stock" json:"stock"`
}

// SourceConfig configures one marketplace: where discovery starts, how to read
// its markup, and how politely to fetch from it.
type SourceConfig struct {
	Domain        string    `yaml:"domain" json:"domain"`
	ListingURL    string    `yaml:"listing_url" json:"listing_url"`
	Workers       int       `yaml:"workers" json:"workers"`
	MinIntervalMS int       `yaml:"min_interval_ms" json:"min_interval_ms"`
	Selectors     Selectors `yaml:"selectors" json:"selectors"`
}

type PolicyConfig struct {
	Sources []SourceConfig `yaml:"sources" json:"sources"`
}

func LoadPolicy(path string) (PolicyConfig, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultPolicy(), err
	}

	var cfg PolicyConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return PolicyConfig{}, err
	}

	if len(cfg.Sources) == 0 {
		return PolicyConfig{}, errors.New("no sources configured")
	}

	return cfg, nil
}

func DefaultPolicy() PolicyConfig {
	return PolicyConfig{Sources: []SourceConfig{
		{
			Domain:        "amazon.fr",
			ListingURL:    "https://www.amazon.fr/s?k=sneakers",
			Workers:       2,
			MinIntervalMS: 1500,
			Selectors: Selectors{
				Item:     "div.s-result-item",
				Link:     "a.a-link-normal",
				Brand:    "span.a-size-base-plus",
				Model:    "h2 span",
				Price:    "span.a-price > span.a-offscreen",
				Image:    "img.s-image",
				NextPage: "a.s-pagination-next",
				Stock:    "span.availability",
			},
		},
		{
			Domain:        "fnac.com",
			ListingURL:    "https://www.fnac.com/chaussures/sneakers",
			Workers:       3,
			MinIntervalMS: 1000,
			Selectors: Selectors{
				Item:     "article.Article-item",
				Link:     "a.Article-title",
				Brand:    ".Article-brand",
				Model:    ".Article-title",
				Price:    ".userPrice",
				Image:    "img.Article-img",
				NextPage: "a.next",
				Stock:    ".availability",
			},
		},
		{
			Domain:        "cdiscount.com",
			ListingURL:    "https://www.cdiscount.com/chaussures/sneakers",
			Workers:       2,
			MinIntervalMS: 2000,
			Selectors: Selectors{
				Item:     "div.prdtBloc",
				Link:     "a.prdtBlocLink",
				Brand:    ".prdtBrand",
				Model:    ".prdtTit",
				Price:    ".price",
				Image:    "img.prdtImg",
				NextPage: "a.pgNext",
				Stock:    ".stockState",
			},
		},
	}}
}

// ForDomain returns the configured source, matching loosely so "amazon"
// resolves amazon.fr.
func (c PolicyConfig) ForDomain(domain string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Domain == domain {
			return src, true
		}
	}
	for _, src := range c.Sources {
		if hostPrefix(src.Domain) == hostPrefix(domain) {
			return src, true
		}
	}
	return SourceConfig{}, false
}

func hostPrefix(domain string) string {
	for i := 0; i < len(domain); i++ {
		if domain[i] == '.' {
			return domain[:i]
		}
	}
	return domain
}
