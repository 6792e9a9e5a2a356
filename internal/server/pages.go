package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bryan-buckman/grainotheque/internal/card"
	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/filter"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Messages shown to the user.
const (
	msgPublished      = "Annonce publiée avec succès ✅"
	msgEmpty          = "Aucune annonce ne correspond à vos critères."
	msgNotFound       = "Annonce introuvable."
	msgRemoteOff      = "Backend distant non configuré (mode démo local)."
	msgSignInToSend   = "Connectez-vous pour envoyer un message."
	msgSignInToPost   = "Connectez-vous pour publier."
	msgSignInToEdit   = "Connectez-vous pour agir sur une annonce."
	msgNotOwner       = "Seul le vendeur peut modifier cette annonce."
	msgSent           = "Message envoyé ✅"
	msgMessagingLocal = "Messagerie inactive sans backend distant."
	msgLoadFailed     = "Impossible de charger les annonces."
)

// CountLabel formats a result count, e.g. "1 résultat" or "3 résultats".
func CountLabel(n int) string {
	if n > 1 {
		return fmt.Sprintf("%d résultats", n)
	}
	return fmt.Sprintf("%d résultat", n)
}

// --- Page Handlers ---

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := s.pageData(r, "home")
	data["Query"] = q

	all, err := s.ds.Listings(r.Context())
	if err != nil {
		s.logger.Warn("load listings", zap.Error(err))
		data["LoadError"] = msgLoadFailed
	}
	featured := filter.Recent(filter.Apply(all, filter.Criteria{Keyword: q}), s.opts.FeaturedCount)
	data["Cards"] = s.cardViews(r, featured)
	data["Empty"] = msgEmpty
	s.render(w, http.StatusOK, "home.html", data)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	criteria := filter.ParseCriteria(r.URL.Query())
	data := s.pageData(r, "listings")

	all, err := s.ds.Listings(r.Context())
	if err != nil {
		s.logger.Warn("load listings", zap.Error(err))
		data["LoadError"] = msgLoadFailed
	}
	visible := filter.Apply(all, criteria)

	data["Query"] = r.URL.Query()
	data["Categories"] = model.Categories
	data["Cards"] = s.cardViews(r, visible)
	data["Count"] = CountLabel(len(visible))
	data["Empty"] = msgEmpty
	s.render(w, http.StatusOK, "listings.html", data)
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	data := s.detailData(r, id)
	if data == nil {
		data = s.pageData(r, "listings")
		data["NotFound"] = msgNotFound
		s.render(w, http.StatusNotFound, "detail.html", data)
		return
	}
	if r.URL.Query().Get("sent") != "" {
		data["Feedback"] = msgSent
	}
	s.render(w, http.StatusOK, "detail.html", data)
}

// detailData loads the listing and the visitor's inbox, or returns nil
// when the listing does not exist.
func (s *Server) detailData(r *http.Request, id string) map[string]interface{} {
	listing, err := s.ds.Listing(r.Context(), id)
	if err != nil {
		if !errors.Is(err, datasource.ErrNotFound) {
			s.logger.Warn("load listing", zap.String("id", id), zap.Error(err))
		}
		return nil
	}

	data := s.pageData(r, "listings")
	view := card.ToCardView(listing)
	view.Return = "/listings"
	data["Card"] = view
	data["Listing"] = listing
	data["Seller"] = sellerName(listing)
	data["Content"] = ""
	data["CanEdit"] = s.canEdit(r, listing)
	if s.payments != nil && !listing.IsExchange() && listing.Price > 0 {
		data["PublishableKey"] = s.payments.PublishableKey()
	}

	switch user := s.currentUser(r); {
	case !s.ds.Remote():
		data["InboxNotice"] = msgMessagingLocal
	case user == nil:
		data["InboxNotice"] = msgSignInToSend
	default:
		inbox, err := s.ds.Inbox(r.Context(), user.ID)
		if err != nil {
			s.logger.Warn("load inbox", zap.String("user", user.ID), zap.Error(err))
			data["InboxNotice"] = "Impossible de charger vos messages."
		} else {
			data["Inbox"] = inbox
		}
	}
	return data
}

// cardViews maps listings to cards that return to the current page. In
// remote mode the delete action only stays on the visitor's own listings.
func (s *Server) cardViews(r *http.Request, listings []model.Listing) []card.CardView {
	views := card.ToCardViews(listings, r.URL.RequestURI())
	if !s.ds.Remote() {
		return views
	}
	var userID string
	if user := s.currentUser(r); user != nil {
		userID = user.ID
	}
	for i := range views {
		if userID != "" && listings[i].SellerID == userID {
			continue
		}
		kept := views[i].Actions[:0:0]
		for _, a := range views[i].Actions {
			if a.Name != "delete" {
				kept = append(kept, a)
			}
		}
		views[i].Actions = kept
	}
	return views
}

// canEdit reports whether the visitor may delete or re-image l.
func (s *Server) canEdit(r *http.Request, l model.Listing) bool {
	if !s.ds.Remote() {
		return true
	}
	user := s.currentUser(r)
	return user != nil && l.SellerID != "" && l.SellerID == user.ID
}

func sellerName(l model.Listing) string {
	if l.SellerName != "" {
		return l.SellerName
	}
	return "Vendeur"
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	data := s.detailData(r, id)
	if data == nil {
		s.renderError(w, r, http.StatusNotFound, msgNotFound)
		return
	}

	content := r.FormValue("content")
	user := s.currentUser(r)
	var status int
	switch {
	case !s.ds.Remote():
		status, data["Feedback"] = http.StatusOK, "Message simulé (backend distant non configuré)."
	case user == nil:
		status, data["Feedback"] = http.StatusUnauthorized, msgSignInToSend
	default:
		err := s.ds.SendMessage(r.Context(), model.Message{ListingID: id, SenderID: user.ID, Content: content})
		var verr *catalog.ValidationError
		switch {
		case err == nil:
			http.Redirect(w, r, "/detail?id="+url.QueryEscape(id)+"&sent=1", http.StatusSeeOther)
			return
		case errors.As(err, &verr):
			status, data["Feedback"] = http.StatusUnprocessableEntity, verr.Message
		default:
			s.logger.Warn("send message", zap.String("listing", id), zap.Error(err))
			status, data["Feedback"] = http.StatusBadGateway, "Envoi impossible, réessayez plus tard."
		}
		data["Content"] = content
	}
	data["FeedbackError"] = status != http.StatusOK
	s.render(w, status, "detail.html", data)
}

func (s *Server) handlePostForm(w http.ResponseWriter, r *http.Request) {
	data := s.postData(r, catalog.Draft{})
	if r.URL.Query().Get("published") != "" {
		data["Success"] = msgPublished
	}
	s.render(w, http.StatusOK, "post.html", data)
}

func (s *Server) postData(r *http.Request, d catalog.Draft) map[string]interface{} {
	data := s.pageData(r, "post")
	data["Draft"] = d
	data["Categories"] = model.Categories
	data["ErrorField"] = ""
	data["Error"] = ""
	return data
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Formulaire invalide.")
		return
	}

	draft := catalog.Draft{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Location:    r.PostFormValue("location"),
		Category:    r.PostFormValue("category"),
		Deal:        r.PostFormValue("type"),
		Price:       r.PostFormValue("price"),
		ImageURL:    r.PostFormValue("image_url"),
	}
	fail := func(status int, field, message string) {
		data := s.postData(r, draft)
		data["ErrorField"] = field
		data["Error"] = message
		s.render(w, status, "post.html", data)
	}

	if s.ds.Remote() {
		user := s.currentUser(r)
		if user == nil {
			fail(http.StatusUnauthorized, "", msgSignInToPost)
			return
		}
		draft.SellerID, draft.SellerName = user.ID, user.DisplayName
	}

	image, err := uploadedImage(r)
	if err != nil {
		fail(http.StatusUnprocessableEntity, "image", imageErrorMessage(err))
		return
	}
	draft.Image = image

	listing, err := draft.Listing(s.now())
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		fail(http.StatusUnprocessableEntity, verr.Field, verr.Message)
		return
	}
	if err != nil {
		fail(http.StatusInternalServerError, "", err.Error())
		return
	}

	if err := s.ds.Publish(r.Context(), listing); err != nil {
		s.logger.Warn("publish listing", zap.Error(err))
		fail(http.StatusBadGateway, "", "Publication impossible, réessayez plus tard.")
		return
	}
	s.logger.Info("listing published", zap.String("id", listing.ID))
	http.Redirect(w, r, "/post?published=1", http.StatusSeeOther)
}

// --- Mutations ---

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, chi.URLParam(r, "id"), false) {
		return
	}
	s.mutate(w, r, "report", func(id string) error { return s.ds.Report(r.Context(), id) })
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, chi.URLParam(r, "id"), true) {
		return
	}
	s.mutate(w, r, "delete", func(id string) error { return s.ds.Delete(r.Context(), id) })
}

func (s *Server) handleSetImage(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, chi.URLParam(r, "id"), true) {
		return
	}
	if err := parseForm(r); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Formulaire invalide.")
		return
	}
	image, err := uploadedImage(r)
	if err != nil {
		s.renderError(w, r, http.StatusUnprocessableEntity, imageErrorMessage(err))
		return
	}
	if image == "" {
		raw := strings.TrimSpace(r.PostFormValue("image_url"))
		if !catalog.ValidImageURL(raw) {
			s.renderError(w, r, http.StatusUnprocessableEntity, "L'URL de l'image doit commencer par http(s):// et se terminer par une extension d'image.")
			return
		}
		image = raw
	}
	s.mutate(w, r, "image", func(id string) error { return s.ds.SetImage(r.Context(), id, image) })
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.ds.Reset(r.Context())
	if errors.Is(err, datasource.ErrNotConfigured) {
		s.renderError(w, r, http.StatusConflict, "La réinitialisation n'existe qu'en mode démo local.")
		return
	}
	if err != nil {
		s.logger.Warn("reset listings", zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "Réinitialisation impossible.")
		return
	}
	http.Redirect(w, r, safeReturn(r.FormValue("return"), "/listings"), http.StatusSeeOther)
}

// authorize gates remote mutations. Any change needs a signed-in user and
// owner-only changes need the listing's seller. Local mode is open.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, id string, ownerOnly bool) bool {
	if !s.ds.Remote() {
		return true
	}
	user := s.currentUser(r)
	if user == nil {
		s.renderError(w, r, http.StatusUnauthorized, msgSignInToEdit)
		return false
	}
	if !ownerOnly {
		return true
	}
	listing, err := s.ds.Listing(r.Context(), id)
	if errors.Is(err, datasource.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound, msgNotFound)
		return false
	}
	if err != nil {
		s.logger.Warn("load listing", zap.String("id", id), zap.Error(err))
		s.renderError(w, r, http.StatusBadGateway, "L'opération a échoué, réessayez plus tard.")
		return false
	}
	if listing.SellerID == "" || listing.SellerID != user.ID {
		s.logger.Warn("listing change refused", zap.String("id", id), zap.String("user", user.ID))
		s.renderError(w, r, http.StatusForbidden, msgNotOwner)
		return false
	}
	return true
}

// mutate applies fn to the {id} route parameter and redirects back.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, action string, fn func(id string) error) {
	id := chi.URLParam(r, "id")
	if err := fn(id); err != nil {
		s.logger.Warn("listing mutation failed", zap.String("action", action), zap.String("id", id), zap.Error(err))
		s.renderError(w, r, http.StatusBadGateway, "L'opération a échoué, réessayez plus tard.")
		return
	}
	http.Redirect(w, r, safeReturn(r.FormValue("return"), "/listings"), http.StatusSeeOther)
}

// --- Form helpers ---

// parseForm accepts both multipart and urlencoded bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(catalog.MaxImageBytes + 1<<20)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// uploadedImage returns the image_file upload as a data URL, or "" when
// no file was sent.
func uploadedImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image_file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()
	if header.Size == 0 {
		return "", nil
	}
	return catalog.ImageDataURL(file)
}

func imageErrorMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrImageTooLarge):
		return "L'image dépasse 2 Mo."
	case errors.Is(err, catalog.ErrNotImage):
		return "Le fichier envoyé n'est pas une image."
	default:
		return "Image illisible."
	}
}

// safeReturn keeps redirects on this site.
func safeReturn(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return u.RequestURI()
}
