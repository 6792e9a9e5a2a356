package catalog

import (
	"math"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/google/uuid"
)

// ValidationError reports a single rejected form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Draft is the raw, untrusted content of the post form.
type Draft struct {
	Title       string
	Description string
	Location    string
	Category    string
	Deal        string
	Price       string
	ImageURL    string
	// Image is an already-encoded data URL from a file upload. It wins over ImageURL.
	Image string

	SellerID   string
	SellerName string
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".svg"}

// ValidImageURL reports whether raw is an absolute http(s) URL whose path
// ends in a recognized image extension. The query string is ignored.
func ValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return slices.Contains(imageExtensions, strings.ToLower(path.Ext(u.Path)))
}

// ParsePrice parses a form price. Empty input means 0. Both "12.5" and "12,5" are accepted.
func ParsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	price, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, &ValidationError{Field: "price", Message: "Le prix doit être un nombre."}
	}
	if price < 0 {
		return 0, &ValidationError{Field: "price", Message: "Le prix ne peut pas être négatif."}
	}
	return price, nil
}

// Listing validates the draft and builds a new listing with a fresh id,
// createdAt set to now and no reports. The first invalid field is reported.
func (d Draft) Listing(now time.Time) (model.Listing, error) {
	title := strings.TrimSpace(d.Title)
	description := strings.TrimSpace(d.Description)
	location := strings.TrimSpace(d.Location)
	imageURL := strings.TrimSpace(d.ImageURL)

	switch {
	case title == "":
		return model.Listing{}, &ValidationError{Field: "title", Message: "Le titre est obligatoire."}
	case description == "":
		return model.Listing{}, &ValidationError{Field: "description", Message: "La description est obligatoire."}
	case location == "":
		return model.Listing{}, &ValidationError{Field: "location", Message: "La localisation est obligatoire."}
	}

	price, err := ParsePrice(d.Price)
	if err != nil {
		return model.Listing{}, err
	}

	category := strings.TrimSpace(d.Category)
	if category == "" {
		category = model.DefaultCategory
	}
	if !slices.Contains(model.Categories, category) {
		return model.Listing{}, &ValidationError{Field: "category", Message: "Catégorie inconnue."}
	}

	deal := model.DealType(strings.TrimSpace(d.Deal))
	switch deal {
	case "":
		deal = model.DealSale
	case model.DealSale:
	case model.DealExchange:
		price = 0
	default:
		return model.Listing{}, &ValidationError{Field: "type", Message: "Type d'annonce inconnu."}
	}

	image := d.Image
	if image == "" && imageURL != "" {
		if !ValidImageURL(imageURL) {
			return model.Listing{}, &ValidationError{
				Field:   "image",
				Message: "L'URL de l'image doit commencer par http(s):// et se terminer par une extension d'image.",
			}
		}
		image = imageURL
	}

	return model.Listing{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Price:       price,
		Category:    category,
		Deal:        deal,
		Location:    location,
		SellerID:    d.SellerID,
		SellerName:  d.SellerName,
		Image:       image,
		CreatedAt:   now,
		Reports:     0,
	}, nil
}
