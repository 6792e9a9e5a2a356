// Package filter selects and orders listings for display.
package filter

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bryan-buckman/grainotheque/internal/model"
)

// SortKey orders filtered listings.
type SortKey string

const (
	SortRecent    SortKey = "recent"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
)

// All is the sentinel that matches any category or deal type.
const All = "all"

// Criteria are the user's filter inputs. The zero value matches everything
// and sorts by recency.
type Criteria struct {
	Keyword  string
	Category string
	Deal     string
	Location string
	MinPrice *float64
	MaxPrice *float64
	Sort     SortKey
}

// Apply returns the listings matching every criterion, in the requested
// order. Ties keep their input order. listings is not modified.
//
// Price bounds are inclusive; setting either bound excludes exchanges.
func Apply(listings []model.Listing, c Criteria) []model.Listing {
	keyword := strings.ToLower(strings.TrimSpace(c.Keyword))
	location := strings.ToLower(strings.TrimSpace(c.Location))
	bounded := c.MinPrice != nil || c.MaxPrice != nil
	min, max := 0.0, math.Inf(1)
	if c.MinPrice != nil {
		min = *c.MinPrice
	}
	if c.MaxPrice != nil {
		max = *c.MaxPrice
	}

	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if keyword != "" && !containsFold(keyword, l.Title, l.Description, l.SellerName) {
			continue
		}
		if !matchTag(c.Category, l.Category) || !matchTag(c.Deal, string(l.Deal)) {
			continue
		}
		if location != "" && !containsFold(location, l.Location) {
			continue
		}
		// An exchange carries no price, so it never satisfies a price bound.
		if bounded && l.IsExchange() {
			continue
		}
		if l.Price < min || l.Price > max {
			continue
		}
		out = append(out, l)
	}

	switch c.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

// Recent returns at most n listings, newest first.
func Recent(listings []model.Listing, n int) []model.Listing {
	out := Apply(listings, Criteria{})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func matchTag(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || want == All || want == got
}

// ParseCriteria reads criteria from query parameters: q, category, type,
// city, min, max and sort. Unparseable or negative bounds are ignored and an
// unknown sort falls back to recent.
func ParseCriteria(v url.Values) Criteria {
	c := Criteria{
		Keyword:  strings.TrimSpace(v.Get("q")),
		Category: strings.TrimSpace(v.Get("category")),
		Deal:     strings.TrimSpace(v.Get("type")),
		Location: strings.TrimSpace(v.Get("city")),
		MinPrice: parseBound(v.Get("min")),
		MaxPrice: parseBound(v.Get("max")),
		Sort:     SortRecent,
	}
	switch s := SortKey(v.Get("sort")); s {
	case SortPriceAsc, SortPriceDesc:
		c.Sort = s
	}
	return c
}

func parseBound(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Values encodes the criteria back into query parameters, omitting defaults.
func (c Criteria) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" && val != All {
			v.Set(k, val)
		}
	}
	set("q", c.Keyword)
	set("category", c.Category)
	set("type", c.Deal)
	set("city", c.Location)
	if c.MinPrice != nil {
		v.Set("min", strconv.FormatFloat(*c.MinPrice, 'f', -1, 64))
	}
	if c.MaxPrice != nil {
		v.Set("max", strconv.FormatFloat(*c.MaxPrice, 'f', -1, 64))
	}
	if c.Sort != "" && c.Sort != SortRecent {
		v.Set("sort", string(c.Sort))
	}
	return v
}

// IsZero reports whether no filter is active.
func (c Criteria) IsZero() bool {
	return len(c.Values()) == 0
}
