package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/filter"
	"github.com/bryan-buckman/grainotheque/internal/payment"
	"github.com/bryan-buckman/grainotheque/internal/rss"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FeedSize caps the exported feed.
const FeedSize = 50

// --- API Handlers ---

func (s *Server) handleAPIListings(w http.ResponseWriter, r *http.Request) {
	all, err := s.ds.Listings(r.Context())
	if err != nil {
		s.logger.Warn("load listings", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "failed to load listings"})
		return
	}
	visible := filter.Apply(all, filter.ParseCriteria(r.URL.Query()))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(visible),
		"listings": visible,
	})
}

func (s *Server) handleAPIListing(w http.ResponseWriter, r *http.Request) {
	listing, err := s.ds.Listing(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, datasource.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "listing not found"})
		return
	}
	if err != nil {
		s.logger.Warn("load listing", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "failed to load listing"})
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "payments not configured"})
		return
	}
	listing, err := s.ds.Listing(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, datasource.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "listing not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "failed to load listing"})
		return
	}

	intent, err := s.payments.CreateIntent(r.Context(), listing)
	if errors.Is(err, payment.ErrNothingToPay) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "nothing to pay for this listing"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "payment provider unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             intent.ID,
		"clientSecret":   intent.ClientSecret,
		"amount":         intent.Amount,
		"currency":       intent.Currency,
		"publishableKey": s.payments.PublishableKey(),
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request"})
			return
		}
	} else {
		req.URL = r.FormValue("url")
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "url must be an http(s) feed address"})
		return
	}
	if !s.importAllowed(r, u) {
		s.logger.Warn("import refused", zap.String("url", u.String()), zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": "feed is not a configured partner"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	imported, err := s.fetcher.FetchFeed(ctx, u.String())
	if err != nil {
		s.logger.Warn("import feed", zap.String("url", u.String()), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "failed to import feed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": imported,
	})
}

// importAllowed accepts feeds on a configured partner host, or any feed
// when the request carries the import token.
func (s *Server) importAllowed(r *http.Request, u *url.URL) bool {
	for _, feed := range s.opts.ImportFeeds {
		if f, err := url.Parse(feed); err == nil && f.Host != "" && strings.EqualFold(f.Host, u.Host) {
			return true
		}
	}
	if s.opts.ImportToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.ImportToken)) == 1
}

func (s *Server) handleExportFeed(w http.ResponseWriter, r *http.Request) {
	all, err := s.ds.Listings(r.Context())
	if err != nil {
		s.logger.Warn("load listings", zap.Error(err))
		http.Error(w, "Failed to load listings", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if err := rss.Export(w, SiteName, baseURL(r), filter.Recent(all, FeedSize), s.now()); err != nil {
		s.logger.Error("export feed", zap.Error(err))
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
