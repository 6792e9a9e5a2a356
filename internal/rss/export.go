package rss

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/model"
)

// Document is the root of an RSS 2.0 document.
type Document struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel holds feed metadata and items.
type Channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	Language      string `xml:"language,omitempty"`
	LastBuildDate string `xml:"lastBuildDate,omitempty"`
	Items         []Item `xml:"item"`
}

// Item is one listing. price, category, type and location are the
// custom elements ToListing reads back on import.
type Item struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description"`
	GUID        GUID       `xml:"guid"`
	PubDate     string     `xml:"pubDate"`
	Enclosure   *Enclosure `xml:"enclosure,omitempty"`
	Price       string     `xml:"price"`
	Category    string     `xml:"category"`
	Type        string     `xml:"type"`
	Location    string     `xml:"location"`
}

// GUID is the item identifier.
type GUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Enclosure points at the listing image.
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

// Export renders listings as an RSS 2.0 document. baseURL is the
// absolute site root used for item links.
func Export(w io.Writer, title, baseURL string, listings []model.Listing, now time.Time) error {
	base := strings.TrimRight(baseURL, "/")
	doc := Document{
		Version: "2.0",
		Channel: Channel{
			Title:         title,
			Link:          base + "/listings",
			Description:   "Dernières annonces",
			Language:      "fr",
			LastBuildDate: now.Format(time.RFC1123Z),
		},
	}

	for _, l := range listings {
		item := Item{
			Title:       l.Title,
			Link:        base + "/detail?id=" + url.QueryEscape(l.ID),
			Description: l.Description,
			GUID:        GUID{Value: l.ID},
			PubDate:     l.CreatedAt.Format(time.RFC1123Z),
			Price:       strconv.FormatFloat(l.Price, 'f', 2, 64),
			Category:    l.Category,
			Type:        string(l.Deal),
			Location:    l.Location,
		}
		// Inline data URLs are too large for feed readers.
		if strings.HasPrefix(l.Image, "http://") || strings.HasPrefix(l.Image, "https://") {
			item.Enclosure = &Enclosure{URL: l.Image, Type: imageType(l.Image)}
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode rss: %w", err)
	}
	return nil
}

func imageType(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "image/jpeg"
	}
	p := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(p, ".png"):
		return "image/png"
	case strings.HasSuffix(p, ".gif"):
		return "image/gif"
	case strings.HasSuffix(p, ".webp"):
		return "image/webp"
	case strings.HasSuffix(p, ".avif"):
		return "image/avif"
	case strings.HasSuffix(p, ".svg"):
		return "image/svg+xml"
	default:
		return "image/jpeg"
	}
}
