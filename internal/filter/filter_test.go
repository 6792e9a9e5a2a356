package filter

import (
	"net/url"
	"testing"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func listing(id string, price float64, minutesAgo int) model.Listing {
	return model.Listing{
		ID:        id,
		Title:     id,
		Price:     price,
		Deal:      model.DealSale,
		CreatedAt: base.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func titles(listings []model.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.Title
	}
	return out
}

func f(v float64) *float64 { return &v }

func sample() []model.Listing {
	return []model.Listing{
		{ID: "1", Title: "Pack Auto", Description: "Graines autofloraison", Category: "Auto", Deal: model.DealSale, Location: "Lyon", Price: 30, CreatedAt: base},
		{ID: "2", Title: "Échange rare", Description: "Série US", Category: "Collection", Deal: model.DealExchange, Location: "Toulouse", Price: 0, CreatedAt: base.Add(-time.Hour)},
		{ID: "3", Title: "Lot Feminized", Description: "Sachets scellés", Category: "Feminized", Deal: model.DealSale, Location: "Lyon 3e", Price: 55, SellerName: "Alice", CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "4", Title: "Regular mix", Description: "Vrac", Category: "Regular", Deal: model.DealSale, Location: "Nantes", Price: 12, CreatedAt: base.Add(-3 * time.Hour)},
	}
}

func TestApply_Predicates(t *testing.T) {
	cases := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"zero criteria", Criteria{}, []string{"Pack Auto", "Échange rare", "Lot Feminized", "Regular mix"}},
		{"keyword title case-insensitive", Criteria{Keyword: "PACK"}, []string{"Pack Auto"}},
		{"keyword description", Criteria{Keyword: "scellés"}, []string{"Lot Feminized"}},
		{"keyword seller", Criteria{Keyword: "alice"}, []string{"Lot Feminized"}},
		{"category", Criteria{Category: "Auto"}, []string{"Pack Auto"}},
		{"category all", Criteria{Category: All}, []string{"Pack Auto", "Échange rare", "Lot Feminized", "Regular mix"}},
		{"deal", Criteria{Deal: "echange"}, []string{"Échange rare"}},
		{"location substring", Criteria{Location: "lyon"}, []string{"Pack Auto", "Lot Feminized"}},
		{"min inclusive", Criteria{MinPrice: f(30)}, []string{"Pack Auto", "Lot Feminized"}},
		{"max inclusive", Criteria{MaxPrice: f(12)}, []string{"Regular mix"}},
		{"bound excludes exchange", Criteria{MinPrice: f(0)}, []string{"Pack Auto", "Lot Feminized", "Regular mix"}},
		{"conjunction", Criteria{Location: "lyon", MaxPrice: f(40)}, []string{"Pack Auto"}},
		{"no match", Criteria{Keyword: "zzz"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, titles(Apply(sample(), tc.c)))
		})
	}
}

func TestApply_RemovingPredicateNeverShrinks(t *testing.T) {
	full := Criteria{Keyword: "a", Category: "Auto", Deal: "vente", Location: "lyon", MinPrice: f(1), MaxPrice: f(100)}
	drops := []func(*Criteria){
		func(c *Criteria) { c.Keyword = "" },
		func(c *Criteria) { c.Category = "" },
		func(c *Criteria) { c.Deal = "" },
		func(c *Criteria) { c.Location = "" },
		func(c *Criteria) { c.MinPrice = nil },
		func(c *Criteria) { c.MaxPrice = nil },
	}
	narrow := Apply(sample(), full)
	for i, drop := range drops {
		c := full
		drop(&c)
		wide := Apply(sample(), c)
		assert.GreaterOrEqual(t, len(wide), len(narrow), "drop %d", i)
		for _, l := range narrow {
			assert.Contains(t, wide, l, "drop %d", i)
		}
	}
}

func TestApply_PriceSortReversesAndIsStable(t *testing.T) {
	in := []model.Listing{
		listing("a", 20, 0),
		listing("b", 10, 1),
		listing("c", 20, 2),
		listing("d", 5, 3),
		listing("e", 10, 4),
	}

	asc := titles(Apply(in, Criteria{Sort: SortPriceAsc}))
	desc := titles(Apply(in, Criteria{Sort: SortPriceDesc}))

	assert.Equal(t, []string{"d", "b", "e", "a", "c"}, asc)
	assert.Equal(t, []string{"a", "c", "b", "e", "d"}, desc)
}

func TestApply_DistinctPricesReverse(t *testing.T) {
	in := []model.Listing{listing("a", 3, 0), listing("b", 1, 1), listing("c", 2, 2)}
	asc := titles(Apply(in, Criteria{Sort: SortPriceAsc}))
	desc := titles(Apply(in, Criteria{Sort: SortPriceDesc}))
	for i := range asc {
		assert.Equal(t, asc[i], desc[len(desc)-1-i])
	}
}

func TestApply_RecentStableOnEqualTimestamps(t *testing.T) {
	in := []model.Listing{listing("old", 1, 10), listing("x", 1, 0), listing("y", 1, 0)}
	assert.Equal(t, []string{"x", "y", "old"}, titles(Apply(in, Criteria{})))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := []model.Listing{listing("a", 1, 5), listing("b", 2, 0)}
	Apply(in, Criteria{Sort: SortPriceDesc})
	assert.Equal(t, "a", in[0].ID)
}

func TestEndToEnd_MaxPriceThenClear(t *testing.T) {
	seed := []model.Listing{
		listing("A", 10, 0),
		listing("B", 20, 10),
		{ID: "C", Title: "C", Price: 0, Deal: model.DealExchange, CreatedAt: base.Add(-20 * time.Minute)},
	}

	got := Apply(seed, ParseCriteria(url.Values{"max": {"15"}}))
	assert.Equal(t, []string{"A"}, titles(got))

	assert.Equal(t, []string{"A", "B", "C"}, titles(Apply(seed, ParseCriteria(url.Values{}))))
}

func TestRecent(t *testing.T) {
	in := []model.Listing{listing("c", 1, 30), listing("a", 1, 0), listing("b", 1, 10)}
	assert.Equal(t, []string{"a", "b"}, titles(Recent(in, 2)))
	assert.Len(t, Recent(in, 10), 3)
}

func TestParseCriteria(t *testing.T) {
	c := ParseCriteria(url.Values{
		"q":        {"  auto "},
		"category": {"Auto"},
		"type":     {"vente"},
		"city":     {"Lyon"},
		"min":      {"5"},
		"max":      {"12,5"},
		"sort":     {"price-desc"},
	})
	assert.Equal(t, "auto", c.Keyword)
	assert.Equal(t, 5.0, *c.MinPrice)
	assert.Equal(t, 12.5, *c.MaxPrice)
	assert.Equal(t, SortPriceDesc, c.Sort)

	bad := ParseCriteria(url.Values{"min": {"-3"}, "max": {"abc"}, "sort": {"random"}})
	assert.Nil(t, bad.MinPrice)
	assert.Nil(t, bad.MaxPrice)
	assert.Equal(t, SortRecent, bad.Sort)
	assert.True(t, bad.IsZero())
}

func TestCriteriaValuesRoundTrip(t *testing.T) {
	c := Criteria{Keyword: "pack", Deal: "echange", MaxPrice: f(15), Sort: SortPriceAsc}
	assert.Equal(t, c, ParseCriteria(c.Values()))
	assert.Equal(t, "max=15&q=pack&sort=price-asc&type=echange", c.Values().Encode())
}
