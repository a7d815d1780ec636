package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/pipeline"
)

// CollyAdapter is the built-in marketplace adapter. One instance per
// configured source domain; selectors come from the source policy file.
type CollyAdapter struct {
	cfg       SourceConfig
	userAgent string
	timeout   time.Duration
}

func NewCollyAdapter(cfg SourceConfig, userAgent string, timeout time.Duration) *CollyAdapter {
	return &CollyAdapter{cfg: cfg, userAgent: userAgent, timeout: timeout}
}

func (a *CollyAdapter) Domain() string {
	return a.cfg.Domain
}

func (a *CollyAdapter) DiscoveryURL() string {
	return a.cfg.ListingURL
}

func (a *CollyAdapter) Discover(ctx context.Context) (RecordIterator, error) {
	return &listingIterator{adapter: a, nextURL: a.cfg.ListingURL}, nil
}

func (a *CollyAdapter) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(a.cfg.Domain, "www."+a.cfg.Domain),
		colly.UserAgent(a.userAgent),
	)
	c.SetRequestTimeout(a.timeout)
	return c
}

// pendingRecord is one extracted listing item, or the parse error that item
// produced.
type pendingRecord struct {
	rec *RawRecord
	err error
}

type listingIterator struct {
	adapter *CollyAdapter
	buffer  []pendingRecord
	nextURL string
}

func (it *listingIterator) Next(ctx context.Context) (*RawRecord, error) {
	for {
		if len(it.buffer) > 0 {
			head := it.buffer[0]
			it.buffer = it.buffer[1:]
			if head.err != nil {
				return nil, head.err
			}
			return head.rec, nil
		}

		if it.nextURL == "" {
			return nil, ErrDone
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := it.visitPage(it.nextURL); err != nil {
			return nil, err
		}
	}
}

// visitPage fetches one listing page and buffers its items. Network failures
// map onto the pipeline error taxonomy so the fetch queue can decide what to
// retry.
func (it *listingIterator) visitPage(pageURL string) error {
	a := it.adapter
	sel := a.cfg.Selectors
	c := a.newCollector()

	pageNext := ""
	var lastStatus int

	c.OnHTML(sel.Item, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.ChildAttr(sel.Link, "href"))
		model := strings.TrimSpace(e.ChildText(sel.Model))
		if link == "" || model == "" {
			it.buffer = append(it.buffer, pendingRecord{err: pipeline.ParseError{
				SourceURL: pageURL,
				Err:       errors.New("listing item missing link or model"),
			}})
			return
		}

		rec := &RawRecord{
			SourceDomain: a.cfg.Domain,
			SourceURL:    link,
			Brand:        strings.TrimSpace(e.ChildText(sel.Brand)),
			ModelName:    model,
			Color:        strings.TrimSpace(e.ChildText(sel.Color)),
			Gender:       strings.TrimSpace(e.ChildText(sel.Gender)),
			CategoryName: strings.TrimSpace(e.ChildText(sel.Category)),
			Description:  strings.TrimSpace(e.ChildText(sel.Description)),
		}

		if img := e.ChildAttr(sel.Image, "src"); img != "" {
			rec.ImageURLs = append(rec.ImageURLs, e.Request.AbsoluteURL(img))
		}

		price, err := parsePrice(e.ChildText(sel.Price))
		if err != nil {
			it.buffer = append(it.buffer, pendingRecord{err: pipeline.ParseError{SourceURL: link, Err: err}})
			return
		}
		rec.Price = price

		it.buffer = append(it.buffer, pendingRecord{rec: rec})
	})

	if sel.NextPage != "" {
		c.OnHTML(sel.NextPage, func(e *colly.HTMLElement) {
			pageNext = e.Request.AbsoluteURL(e.Attr("href"))
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			lastStatus = r.StatusCode
		}
	})

	err := c.Visit(pageURL)
	it.nextURL = pageNext

	if err != nil {
		return classifyVisitError(a.cfg.Domain, pageURL, lastStatus, err)
	}
	return nil
}

func (a *CollyAdapter) Refresh(ctx context.Context, sourceURL string) (*RefreshResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sel := a.cfg.Selectors
	c := a.newCollector()

	result := &RefreshResult{SourceURL: sourceURL}
	var lastStatus int

	c.OnHTML(sel.Price, func(e *colly.HTMLElement) {
		if result.Price != nil {
			return
		}
		if price, err := parsePrice(e.Text); err == nil {
			result.Price = &price
		}
	})

	if sel.Stock != "" {
		c.OnHTML(sel.Stock, func(e *colly.HTMLElement) {
			size := strings.TrimSpace(e.Attr("data-size"))
			if size == "" && sel.Size != "" {
				size = strings.TrimSpace(e.ChildText(sel.Size))
			}
			if size == "" {
				return
			}
			stock := 0
			if raw := e.Attr("data-stock"); raw != "" {
				if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
					stock = parsed
				}
			}
			result.Sizes = append(result.Sizes, SizeStock{Size: size, Stock: stock})
		})
	}

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			lastStatus = r.StatusCode
		}
	})

	if err := c.Visit(sourceURL); err != nil {
		return nil, classifyVisitError(a.cfg.Domain, sourceURL, lastStatus, err)
	}

	if result.Price == nil && len(result.Sizes) == 0 {
		return nil, pipeline.ParseError{SourceURL: sourceURL, Err: errors.New("no price or stock found on page")}
	}

	logger.Log.WithFields(map[string]interface{}{
		"source": a.cfg.Domain,
		"url":    sourceURL,
	}).Debug("refreshed product page")

	return result, nil
}

func classifyVisitError(domain, url string, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return pipeline.AdapterError{Domain: domain, Err: fmt.Errorf("blocked with status %d: %w", status, err)}
	case status == 404:
		return pipeline.ParseError{SourceURL: url, Err: fmt.Errorf("page not found: %w", err)}
	default:
		return pipeline.NetworkError{Err: err, StatusCode: status}
	}
}

func parsePrice(raw string) (float64, error) {
	cleaned := strings.NewReplacer("€", "", "$", "", " ", "", " ", "", ",", ".").Replace(raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, errors.New("empty price")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative price %q", raw)
	}
	return value, nil
}
