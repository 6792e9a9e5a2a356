// Package card turns listings into display-ready card views.
package card

import (
	_ "embed"
	"html/template"
	"io"
	"net/url"
	"strings"

	"github.com/bryan-buckman/grainotheque/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ExcerptLength is the description budget, in runes, before truncation.
const ExcerptLength = 80

// PlaceholderImage is shown for listings without a usable image.
const PlaceholderImage = "https://via.placeholder.com/800x500?text=Annonce"

//go:embed card.html
var fragment string

var printer = message.NewPrinter(language.French)

// Action is a mutation offered on a card, submitted as a POST form.
type Action struct {
	Name   string
	Label  string
	URL    string
	Danger bool
}

// CardView holds everything the card fragment displays. All string fields
// are raw text; the template escapes them.
type CardView struct {
	ID           string
	Title        string
	Badge        string
	DealLabel    string
	Location     string
	PriceLabel   string
	Excerpt      string
	ImageURL     template.URL
	CreatedLabel string
	Reports      int
	DetailURL    string
	Actions      []Action
	// Return is where mutation forms redirect afterwards.
	Return string
}

// ToCardView maps a listing to its card.
func ToCardView(l model.Listing) CardView {
	id := url.PathEscape(l.ID)
	return CardView{
		ID:           l.ID,
		Title:        l.Title,
		Badge:        l.Category,
		DealLabel:    DealLabel(l.Deal),
		Location:     l.Location,
		PriceLabel:   PriceLabel(l),
		Excerpt:      Truncate(l.Description, ExcerptLength),
		ImageURL:     ImageURL(l.Image),
		CreatedLabel: l.CreatedAt.Local().Format("02/01/2006 15:04"),
		Reports:      l.Reports,
		DetailURL:    "/detail?id=" + url.QueryEscape(l.ID),
		Actions: []Action{
			{Name: "report", Label: "Signaler", URL: "/listings/" + id + "/report", Danger: true},
			{Name: "delete", Label: "Supprimer", URL: "/listings/" + id + "/delete"},
		},
	}
}

// ToCardViews maps every listing, setting ret as the post-action redirect.
func ToCardViews(listings []model.Listing, ret string) []CardView {
	out := make([]CardView, len(listings))
	for i, l := range listings {
		out[i] = ToCardView(l)
		out[i].Return = ret
	}
	return out
}

// Truncate cuts s to n runes, appending "..." only when something was cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// PriceLabel renders the price in French locale, or "Échange" for a
// zero-priced exchange.
func PriceLabel(l model.Listing) string {
	if l.Price == 0 && l.IsExchange() {
		return "Échange"
	}
	return FormatPrice(l.Price)
}

// FormatPrice renders an amount as euros, e.g. "25,00 €".
func FormatPrice(amount float64) string {
	return printer.Sprintf("%.2f €", amount)
}

// DealLabel is the human label of a deal type.
func DealLabel(d model.DealType) string {
	if d == model.DealExchange {
		return "Échange"
	}
	return "Vente"
}

// ImageURL returns raw as a trusted URL if it is an absolute http(s) URL or
// a base64 image data URL, and the placeholder otherwise.
func ImageURL(raw string) template.URL {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:image/") && strings.Contains(raw, ";base64,") {
		return template.URL(raw)
	}
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return template.URL(u.String())
	}
	return PlaceholderImage
}

// Define adds the "card" fragment to t so page templates can include it.
func Define(t *template.Template) error {
	_, err := t.New("card.html").Parse(fragment)
	return err
}

var standalone = template.Must(template.New("card.html").Parse(fragment))

// Render writes a single card.
func Render(w io.Writer, v CardView) error {
	return standalone.ExecuteTemplate(w, "card", v)
}
