// Package scraper reads the provider's outage announcement list.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

// Fetcher returns the decoded body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Options configures a Scraper.
type Options struct {
	BaseURL      string
	ListPath     string
	MaxPages     int
	PageInterval time.Duration
}

// Scraper walks the paginated outage list.
type Scraper struct {
	fetcher  Fetcher
	baseURL  string
	listURL  string
	maxPages int
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Scraper that fetches pages through f.
func New(f Fetcher, opts Options, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}

	limit := rate.Inf
	if opts.PageInterval > 0 {
		limit = rate.Every(opts.PageInterval)
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	listPath := "/" + strings.Trim(opts.ListPath, "/") + "/"
	if listPath == "//" {
		listPath = "/"
	}

	return &Scraper{
		fetcher:  f,
		baseURL:  base,
		listURL:  base + listPath,
		maxPages: opts.MaxPages,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		logger:   logger,
	}
}

// PageURL returns the list URL for a 1-based page number.
func (s *Scraper) PageURL(page int) string {
	if page <= 1 {
		return s.listURL
	}
	return fmt.Sprintf("%spage/%d/", s.listURL, page)
}

// FetchOutages gathers records from up to MaxPages list pages. It stops at the
// first page that cannot be fetched or holds no records and returns what it
// has so far. Only context cancellation is reported as an error.
func (s *Scraper) FetchOutages(ctx context.Context) ([]model.Outage, error) {
	var all []model.Outage
	now := s.now().UTC()

	for page := 1; page <= s.maxPages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return all, fmt.Errorf("wait for page %d: %w", page, err)
		}

		url := s.PageURL(page)
		body, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			s.logger.Warn("page fetch failed", "page", page, "url", url, "error", err)
			break
		}

		outages, err := Parse(strings.NewReader(body), s.baseURL)
		if err != nil {
			s.logger.Warn("page parse failed", "page", page, "error", err)
			break
		}
		if len(outages) == 0 {
			s.logger.Info("no outages on page", "page", page)
			break
		}

		for i := range outages {
			outages[i].LastUpdated = now
		}
		all = append(all, outages...)
		s.logger.Info("fetched outage page", "page", page, "count", len(outages))
	}
	return all, nil
}
