// Package server provides the HTTP server and handlers.
package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/card"
	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/logging"
	"github.com/bryan-buckman/grainotheque/internal/payment"
	"github.com/bryan-buckman/grainotheque/internal/rss"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// SessionCookie holds the remote session token.
const SessionCookie = "grainotheque_session"

// SiteName is shown in page titles and the exported feed.
const SiteName = "Grainothèque"

var pages = []string{"home.html", "listings.html", "detail.html", "post.html", "account.html", "error.html"}

// Options configures a Server. Only DataSource is required.
type Options struct {
	DataSource datasource.DataSource
	// Payments is nil when Stripe is not configured.
	Payments payment.Provider
	// Fetcher imports partner feeds; one is created when nil.
	Fetcher *rss.Fetcher
	Logger  *zap.Logger

	FeaturedCount      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	SecureCookies      bool
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Enable it only behind a reverse proxy that sets those headers.
	TrustProxy bool

	// ImportFeeds lists partner feeds; their hosts may be imported by anyone.
	ImportFeeds []string
	// ImportToken, when set, lets a Bearer-authenticated caller import any feed.
	ImportToken string
}

// Server is the main HTTP server.
type Server struct {
	ds        datasource.DataSource
	payments  payment.Provider
	fetcher   *rss.Fetcher
	logger    *zap.Logger
	router    chi.Router
	templates map[string]*template.Template
	limiter   *ipRateLimiter
	opts      Options
	now       func() time.Time
}

// New creates a new server.
func New(opts Options) (*Server, error) {
	if opts.DataSource == nil {
		return nil, fmt.Errorf("server: nil data source")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FeaturedCount <= 0 {
		opts.FeaturedCount = 6
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = rss.NewFetcher(opts.DataSource, opts.Logger)
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		ds:        opts.DataSource,
		payments:  opts.Payments,
		fetcher:   opts.Fetcher,
		logger:    opts.Logger.Named("server"),
		templates: tmpl,
		limiter:   newIPRateLimiter(opts.RateLimitPerMinute),
		opts:      opts,
		now:       time.Now,
	}
	s.setupRoutes()
	return s, nil
}

func parseTemplates() (map[string]*template.Template, error) {
	base, err := template.New("").Funcs(template.FuncMap{
		"date": formatDate,
	}).ParseFS(templatesFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if err := card.Define(base); err != nil {
		return nil, fmt.Errorf("parse card: %w", err)
	}

	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templatesFS, "templates/"+page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		out[page] = t
	}
	return out, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(secureHeaders)
	r.Use(s.limiter.limitPosts(s.logger))

	// Serve static files.
	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Pages.
	r.Get("/", s.handleHome)
	r.Get("/listings", s.handleListings)
	r.Get("/detail", s.handleDetail)
	r.Post("/detail/message", s.handleSendMessage)
	r.Get("/post", s.handlePostForm)
	r.Post("/post", s.handlePublish)
	r.Get("/account", s.handleAccount)
	r.Post("/account/signup", s.handleSignUp)
	r.Post("/account/login", s.handleLogin)
	r.Post("/account/logout", s.handleLogout)
	r.Get("/feed.xml", s.handleExportFeed)

	// Mutations.
	r.Post("/listings/{id}/report", s.handleReport)
	r.Post("/listings/{id}/delete", s.handleDelete)
	r.Post("/listings/{id}/image", s.handleSetImage)
	r.Post("/reset", s.handleReset)

	// API.
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}).Handler)
		r.Get("/listings", s.handleAPIListings)
		r.Get("/listings/{id}", s.handleAPIListing)
		r.Post("/listings/{id}/payment-intent", s.handlePaymentIntent)
		r.Post("/import", s.handleImport)
	})

	s.router = r
}

// ServeHTTP dispatches to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// --- Helpers ---

func (s *Server) render(w http.ResponseWriter, status int, name string, data map[string]interface{}) {
	t, ok := s.templates[name]
	if !ok {
		s.logger.Error("unknown template", zap.String("template", name))
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.Error("template error", zap.String("template", name), zap.Error(err))
	}
}

// renderError shows a full-page error with a link back.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	data := s.pageData(r, "")
	data["Message"] = message
	data["Back"] = safeReturn(r.FormValue("return"), "/listings")
	s.render(w, status, "error.html", data)
}

func (s *Server) pageData(r *http.Request, active string) map[string]interface{} {
	return map[string]interface{}{
		"SiteName":   SiteName,
		"Active":     active,
		"Remote":     s.ds.Remote(),
		"DataSource": s.ds.Name(),
		"User":       s.currentUser(r),
	}
}

func formatDate(t time.Time) string {
	return t.Local().Format("02/01/2006 15:04")
}
