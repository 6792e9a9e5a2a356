// Package model defines shared data structures.
package model

import "time"

// DealType classifies a listing as a sale or an exchange.
type DealType string

const (
	DealSale     DealType = "vente"
	DealExchange DealType = "echange"
)

// Categories are the recognized listing categories, in display order.
var Categories = []string{"Feminized", "Auto", "Regular", "Packs", "Collection"}

// DefaultCategory is used when a listing is posted without a category.
const DefaultCategory = "Collection"

// Listing is one classified ad.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Deal        DealType  `json:"type"`
	Location    string    `json:"location"`
	SellerID    string    `json:"sellerId,omitempty"`
	SellerName  string    `json:"sellerName,omitempty"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Reports     int       `json:"reports"`
}

// IsExchange reports whether the listing is an exchange rather than a sale.
func (l Listing) IsExchange() bool {
	return l.Deal == DealExchange
}

// Message is a note sent to a listing's seller.
type Message struct {
	ID           string    `json:"id"`
	ListingID    string    `json:"listingId"`
	ListingTitle string    `json:"listingTitle,omitempty"`
	SenderID     string    `json:"senderId"`
	ReceiverID   string    `json:"receiverId"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

// User is a registered account on the remote data source.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Session binds an opaque token to a signed-in user.
type Session struct {
	Token     string
	User      User
	ExpiresAt time.Time
}

// InboxLimit is the number of messages shown in a user's inbox.
const InboxLimit = 20
