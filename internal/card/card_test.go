package card

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	exact := strings.Repeat("é", ExcerptLength)
	assert.Equal(t, exact, Truncate(exact, ExcerptLength), "no ellipsis at the budget")
	assert.Equal(t, "court", Truncate("court", ExcerptLength))

	long := strings.Repeat("a", ExcerptLength+1)
	got := Truncate(long, ExcerptLength)
	assert.Equal(t, strings.Repeat("a", ExcerptLength)+"...", got)
}

func TestPriceLabel(t *testing.T) {
	cases := []struct {
		name string
		l    model.Listing
		want string
	}{
		{"exchange at zero", model.Listing{Price: 0, Deal: model.DealExchange}, "Échange"},
		{"free sale", model.Listing{Price: 0, Deal: model.DealSale}, "0,00 €"},
		{"sale", model.Listing{Price: 25, Deal: model.DealSale}, "25,00 €"},
		{"decimals", model.Listing{Price: 12.5, Deal: model.DealSale}, "12,50 €"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PriceLabel(tc.l))
		})
	}
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a.png", string(ImageURL("https://example.com/a.png")))
	assert.Equal(t, "data:image/png;base64,AAAA", string(ImageURL("data:image/png;base64,AAAA")))
	assert.Equal(t, PlaceholderImage, string(ImageURL("")))
	assert.Equal(t, PlaceholderImage, string(ImageURL("javascript:alert(1)")))
	assert.Equal(t, PlaceholderImage, string(ImageURL("data:text/html;base64,PHNjcmlwdD4=")))
}

func TestToCardView(t *testing.T) {
	l := model.Listing{
		ID:          "a/b",
		Title:       "Lot",
		Description: strings.Repeat("x", 100),
		Price:       48,
		Category:    "Packs",
		Deal:        model.DealSale,
		Location:    "Nantes",
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Reports:     2,
	}

	v := ToCardView(l)

	assert.Equal(t, "Packs", v.Badge)
	assert.Equal(t, "Vente", v.DealLabel)
	assert.Equal(t, "48,00 €", v.PriceLabel)
	assert.Len(t, []rune(v.Excerpt), ExcerptLength+3)
	assert.Equal(t, "/detail?id=a%2Fb", v.DetailURL)
	require.Len(t, v.Actions, 2)
	assert.Equal(t, "/listings/a%2Fb/report", v.Actions[0].URL)
	assert.Equal(t, 2, v.Reports)
}

func TestRender_EscapesUserText(t *testing.T) {
	l := model.Listing{
		ID:          `x"><script>`,
		Title:       `<script>alert("t")</script>`,
		Description: `<img src=x onerror=alert(1)>`,
		Location:    `<b>Lyon</b>`,
		Category:    `<i>Packs</i>`,
		Image:       `javascript:alert(1)`,
	}
	views := ToCardViews([]model.Listing{l}, `/listings?q="><script>`)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, views[0]))
	out := buf.String()

	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<img src=x")
	assert.NotContains(t, out, "<b>")
	assert.NotContains(t, out, "<i>")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, PlaceholderImage)
}

func TestRender_DataImage(t *testing.T) {
	v := ToCardView(model.Listing{ID: "1", Title: "t", Image: "data:image/png;base64,iVBORw0KGgo="})

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, v))
	assert.Contains(t, buf.String(), `src="data:image/png;base64,iVBORw0KGgo="`)
}
