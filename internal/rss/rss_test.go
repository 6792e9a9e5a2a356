package rss

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/database"
	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const partnerFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Graines du Sud</title>
    <link>https://partner.example</link>
    <description>Annonces partenaires</description>
    <item>
      <title>Lot de graines anciennes</title>
      <link>https://partner.example/a/1</link>
      <guid>p-1</guid>
      <description>Variétés rares de 1980.</description>
      <pubDate>Tue, 30 Apr 2024 10:00:00 +0000</pubDate>
      <enclosure url="https://partner.example/img/1.jpg" type="image/jpeg" length="0"/>
      <price>12,50</price>
      <category>Regular</category>
      <location>Marseille</location>
    </item>
    <item>
      <title>Échange boutures</title>
      <guid>p-2</guid>
      <description>Contre graines auto.</description>
      <type>echange</type>
      <price>30</price>
    </item>
    <item>
      <title>Prix invalide</title>
      <guid>p-3</guid>
      <description>x</description>
      <price>-4</price>
    </item>
    <item>
      <title></title>
      <guid>p-4</guid>
    </item>
  </channel>
</rss>`

func newLocal() datasource.DataSource {
	return datasource.NewLocal(catalog.New(database.NewMemory(), "", nil, nil))
}

func serveFeed(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/feed.xml"
}

func TestFetchFeed_ImportsValidItemsOnce(t *testing.T) {
	ctx := context.Background()
	ds := newLocal()
	feedURL := serveFeed(t, partnerFeed)
	f := NewFetcher(ds, nil)

	n, err := f.FetchFeed(ctx, feedURL)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := ds.Listing(ctx, ItemID(feedURL, "p-1"))
	require.NoError(t, err)
	assert.Equal(t, "Lot de graines anciennes", got.Title)
	assert.Equal(t, 12.5, got.Price)
	assert.Equal(t, "Regular", got.Category)
	assert.Equal(t, "Marseille", got.Location)
	assert.Equal(t, "Graines du Sud", got.SellerName)
	assert.Equal(t, "https://partner.example/img/1.jpg", got.Image)
	assert.Equal(t, time.Date(2024, 4, 30, 10, 0, 0, 0, time.UTC), got.CreatedAt)

	swap, err := ds.Listing(ctx, ItemID(feedURL, "p-2"))
	require.NoError(t, err)
	assert.True(t, swap.IsExchange())
	assert.Equal(t, 0.0, swap.Price)
	assert.Equal(t, DefaultLocation, swap.Location)
	assert.Equal(t, model.DefaultCategory, swap.Category)

	n, err = f.FetchFeed(ctx, feedURL)
	require.NoError(t, err)
	assert.Zero(t, n, "re-import is a no-op")

	all, err := ds.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFetchFeed_BadFeed(t *testing.T) {
	f := NewFetcher(newLocal(), nil)
	_, err := f.FetchFeed(context.Background(), serveFeed(t, "not a feed"))
	assert.Error(t, err)
}

func TestFetchAll_SkipsFailedFeeds(t *testing.T) {
	good := serveFeed(t, partnerFeed)
	bad := serveFeed(t, "<html></html>")
	f := NewFetcher(newLocal(), nil)

	results, err := f.FetchAll(context.Background(), []string{good, bad})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{good: 2}, results)
}

func TestExport_RoundTripsThroughImport(t *testing.T) {
	listings := catalog.Seed(testNow)
	listings[0].Image = "https://cdn.example/lot.png"
	listings[1].Title = `<script>alert("x")</script> & co`

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "Grainothèque", "https://grainotheque.example/", listings, testNow))
	out := buf.String()

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "https://grainotheque.example/detail?id=demo-1")
	assert.Contains(t, out, `<enclosure url="https://cdn.example/lot.png" type="image/png"`)

	parsed, err := gofeed.NewParser().ParseString(out)
	require.NoError(t, err)
	require.Len(t, parsed.Items, 3)

	for i, item := range parsed.Items {
		got, err := ToListing("https://grainotheque.example/feed.xml", parsed.Title, item, testNow)
		require.NoError(t, err)
		assert.Equal(t, listings[i].Price, got.Price)
		assert.Equal(t, listings[i].Category, got.Category)
		assert.Equal(t, listings[i].Deal, got.Deal)
		assert.Equal(t, listings[i].Location, got.Location)
		assert.True(t, listings[i].CreatedAt.Equal(got.CreatedAt))
	}
}

func TestNewPoller_EnforcesMinimumInterval(t *testing.T) {
	f := NewFetcher(newLocal(), nil)
	assert.Equal(t, MinPollingIntervalMinutes*time.Minute, NewPoller(f, nil, 1).Interval())
	assert.Equal(t, time.Hour, NewPoller(f, nil, 60).Interval())
}

func TestPoller_StartStop(t *testing.T) {
	ds := newLocal()
	feedURL := serveFeed(t, partnerFeed)
	p := NewPoller(NewFetcher(ds, nil), []string{feedURL}, 60)

	p.Start()
	require.Eventually(t, func() bool {
		all, _ := ds.Listings(context.Background())
		return len(all) == 2
	}, 5*time.Second, 20*time.Millisecond)
	p.Stop()
}
