package source

import (
	"context"
	"errors"
)

// ErrDone signals the end of a discovery sequence.
var ErrDone = errors.New("no more records")

// RawRecord is one scraped product as the adapter saw it. Everything here is
// unverified input; the matching engine normalizes it before any write.
type RawRecord struct {
	SourceDomain string
	SourceURL    string
	Brand        string
	ModelName    string
	Color        string
	Gender       string
	CategoryName string
	Description  string
	Price        float64
	ImageURLs    []string
}

// SizeStock is per-size availability reported by a refresh call.
type SizeStock struct {
	Size  string
	Stock int
}

// RefreshResult carries only the fields targeted refresh is allowed to write.
type RefreshResult struct {
	SourceURL string
	Price     *float64
	Sizes     []SizeStock
}

// RecordIterator yields raw records lazily. Next returns ErrDone when the
// sequence is exhausted. A pipeline.ParseError reports one unusable record;
// iteration may continue past it. Any other error is treated as fatal to the
// sequence.
type RecordIterator interface {
	Next(ctx context.Context) (*RawRecord, error)
}

// Adapter is the per-marketplace contract. Discovery produces a lazy sequence
// treated as unbounded; Refresh fetches current price/stock for one known item.
type Adapter interface {
	Domain() string
	DiscoveryURL() string
	Discover(ctx context.Context) (RecordIterator, error)
	Refresh(ctx context.Context, sourceURL string) (*RefreshResult, error)
}
