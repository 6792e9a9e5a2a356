package catalog

import (
	"time"

	"github.com/bryan-buckman/grainotheque/internal/model"
)

// Seed returns the default listings, dated relative to now.
func Seed(now time.Time) []model.Listing {
	return []model.Listing{
		{
			ID:          "demo-1",
			Title:       "Lot vintage • Variétés européennes",
			Description: "Collection scellée, millésime 2019, stockage sec.",
			Price:       25,
			Category:    "Collection",
			Deal:        model.DealSale,
			Location:    "Lyon",
			CreatedAt:   now,
		},
		{
			ID:          "demo-2",
			Title:       "Échange collectionneurs • Série US",
			Description: "Recherche lot équivalent ancien, uniquement collection.",
			Price:       0,
			Category:    "Collection",
			Deal:        model.DealExchange,
			Location:    "Toulouse",
			CreatedAt:   now.Add(-20 * time.Minute),
		},
		{
			ID:          "demo-3",
			Title:       "Pack rare • Banque privée",
			Description: "4 sachets en édition limitée, état neuf.",
			Price:       48,
			Category:    "Packs",
			Deal:        model.DealSale,
			Location:    "Nantes",
			CreatedAt:   now.Add(-40 * time.Minute),
		},
	}
}
