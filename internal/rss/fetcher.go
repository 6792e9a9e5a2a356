// Package rss imports partner listings from feeds and exports ours.
package rss

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// MinPollingIntervalMinutes is the minimum allowed interval.
const MinPollingIntervalMinutes = 15

// Concurrency settings
const (
	// MaxConcurrencyRemote is the number of parallel fetches against the remote backend.
	MaxConcurrencyRemote = 10
	// MaxConcurrencyLocal is the number of parallel fetches for the local store,
	// which persists the whole collection on every insert.
	MaxConcurrencyLocal = 1
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

// DefaultLocation is used for items that carry no location.
const DefaultLocation = "Partenaire"

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < DelayBetweenDomainRequests {
			select {
			case <-time.After(DelayBetweenDomainRequests - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	return u.Host
}

// Fetcher imports listings from partner RSS and Atom feeds.
type Fetcher struct {
	ds            datasource.DataSource
	parser        *gofeed.Parser
	concurrency   int
	domainLimiter *domainLimiter
	logger        *zap.Logger
	now           func() time.Time
}

// NewFetcher creates a fetcher with concurrency based on the data source.
func NewFetcher(ds datasource.DataSource, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := MaxConcurrencyLocal
	if ds.Remote() {
		concurrency = MaxConcurrencyRemote
	}
	return &Fetcher{
		ds:            ds,
		parser:        gofeed.NewParser(),
		concurrency:   concurrency,
		domainLimiter: newDomainLimiter(),
		logger:        logger.Named("rss"),
		now:           time.Now,
	}
}

// ItemID derives a stable listing id from a feed item so re-importing
// the same item is a no-op.
func ItemID(feedURL, guid string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedURL+"#"+guid)).String()
}

// ToListing maps a feed item onto a validated listing. Partner fields
// price, category, type and location are read from custom elements.
func ToListing(feedURL, feedTitle string, item *gofeed.Item, now time.Time) (model.Listing, error) {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		return model.Listing{}, errors.New("item has neither guid nor link")
	}

	description := strings.TrimSpace(item.Description)
	if description == "" {
		description = strings.TrimSpace(item.Content)
	}
	if description == "" {
		description = item.Title
	}
	location := item.Custom["location"]
	if strings.TrimSpace(location) == "" {
		location = DefaultLocation
	}

	category := item.Custom["category"]
	if category == "" && len(item.Categories) > 0 {
		category = item.Categories[0]
	}

	draft := catalog.Draft{
		Title:       item.Title,
		Description: description,
		Location:    location,
		Category:    category,
		Deal:        item.Custom["type"],
		Price:       item.Custom["price"],
		SellerName:  feedTitle,
	}
	if image := itemImage(item); catalog.ValidImageURL(image) {
		draft.ImageURL = image
	}

	listing, err := draft.Listing(now)
	if err != nil {
		return model.Listing{}, err
	}
	listing.ID = ItemID(feedURL, guid)
	if item.PublishedParsed != nil {
		listing.CreatedAt = item.PublishedParsed.UTC()
	}
	return listing, nil
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// FetchFeed fetches and parses a single feed, publishing new listings.
// Returns the number of new listings.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (int, error) {
	domain := extractDomain(feedURL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return 0, fmt.Errorf("rate limit cancelled for %s: %w", feedURL, err)
	}
	defer f.domainLimiter.release(domain)

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	now := f.now()
	newCount := 0
	for _, item := range parsed.Items {
		listing, err := ToListing(feedURL, parsed.Title, item, now)
		if err != nil {
			f.logger.Debug("skipping feed item", zap.String("feed", feedURL), zap.String("title", item.Title), zap.Error(err))
			continue
		}
		if _, err := f.ds.Listing(ctx, listing.ID); err == nil {
			continue
		} else if !errors.Is(err, datasource.ErrNotFound) {
			return newCount, fmt.Errorf("lookup %s: %w", listing.ID, err)
		}
		if err := f.ds.Publish(ctx, listing); err != nil {
			f.logger.Warn("publish imported listing", zap.String("id", listing.ID), zap.Error(err))
			continue
		}
		newCount++
	}
	return newCount, nil
}

// FetchResult holds the result of fetching a single feed.
type FetchResult struct {
	URL         string
	NewListings int
	Error       error
}

// FetchAll fetches every feed and returns a map of feed URL -> new listing count.
// Failed feeds are logged and left out of the result.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []string) (map[string]int, error) {
	if len(feeds) == 0 {
		return make(map[string]int), nil
	}

	f.logger.Info("fetching feeds", zap.Int("feeds", len(feeds)), zap.Int("concurrency", f.concurrency))

	if f.concurrency <= 1 {
		return f.fetchSequential(ctx, feeds)
	}
	return f.fetchParallel(ctx, feeds), nil
}

func (f *Fetcher) fetchSequential(ctx context.Context, feeds []string) (map[string]int, error) {
	results := make(map[string]int)
	for i, feed := range feeds {
		select {
		case <-ctx.Done():
			f.logger.Warn("fetch cancelled", zap.Int("done", i), zap.Int("feeds", len(feeds)))
			return results, ctx.Err()
		default:
		}

		count, err := f.FetchFeed(ctx, feed)
		if err != nil {
			f.logger.Warn("fetch failed", zap.String("feed", feed), zap.Error(err))
			continue
		}
		results[feed] = count
	}
	return results, nil
}

func (f *Fetcher) fetchParallel(ctx context.Context, feeds []string) map[string]int {
	var wg sync.WaitGroup

	results := make(map[string]int)
	feedChan := make(chan string, len(feeds))
	resultChan := make(chan FetchResult, len(feeds))

	for i := 0; i < f.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range feedChan {
				if ctx.Err() != nil {
					return
				}
				count, err := f.FetchFeed(ctx, feed)
				resultChan <- FetchResult{URL: feed, NewListings: count, Error: err}
			}
		}()
	}

	for _, feed := range feeds {
		feedChan <- feed
	}
	close(feedChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		if result.Error != nil {
			f.logger.Warn("fetch failed", zap.String("feed", result.URL), zap.Error(result.Error))
			continue
		}
		results[result.URL] = result.NewListings
	}
	return results
}

// Poller imports the configured feeds on an interval.
type Poller struct {
	fetcher  *Fetcher
	feeds    []string
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. Intervals below
// MinPollingIntervalMinutes are raised to it.
func NewPoller(fetcher *Fetcher, feeds []string, intervalMinutes int) *Poller {
	if intervalMinutes < MinPollingIntervalMinutes {
		intervalMinutes = MinPollingIntervalMinutes
	}
	return &Poller{
		fetcher:  fetcher,
		feeds:    feeds,
		interval: time.Duration(intervalMinutes) * time.Minute,
		logger:   fetcher.logger,
		stopChan: make(chan struct{}),
	}
}

// Interval returns the effective polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			results, err := p.fetcher.FetchAll(ctx, p.feeds)
			cancel()

			if err != nil {
				p.logger.Warn("poll failed", zap.Error(err))
			} else {
				total := 0
				for _, c := range results {
					total += c
				}
				p.logger.Info("poll done", zap.Int("new_listings", total), zap.Int("feeds", len(results)))
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
