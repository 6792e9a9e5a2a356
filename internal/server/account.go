package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/model"
	"go.uber.org/zap"
)

// currentUser resolves the session cookie. It returns nil for anonymous
// visitors and whenever the remote backend is off.
func (s *Server) currentUser(r *http.Request) *model.User {
	if !s.ds.Remote() {
		return nil
	}
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	session, err := s.ds.Session(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, datasource.ErrNotFound) {
			s.logger.Warn("session lookup", zap.Error(err))
		}
		return nil
	}
	return &session.User
}

func (s *Server) setSession(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.renderAccount(w, r, http.StatusOK, s.currentUser(r), "")
}

func (s *Server) renderAccount(w http.ResponseWriter, r *http.Request, status int, user *model.User, feedback string) {
	data := s.pageData(r, "account")
	data["User"] = user
	data["Feedback"] = feedback
	if r.URL.Query().Get("created") != "" && feedback == "" {
		data["Feedback"] = "Compte créé ✅"
	}

	switch {
	case !s.ds.Remote():
		data["Status"] = msgRemoteOff
	case user == nil:
		data["Status"] = "Non connecté."
	default:
		data["Status"] = "Connecté: " + user.Email
		inbox, err := s.ds.Inbox(r.Context(), user.ID)
		if err != nil {
			s.logger.Warn("load inbox", zap.String("user", user.ID), zap.Error(err))
		}
		data["Inbox"] = inbox
	}
	s.render(w, status, "account.html", data)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")
	if _, err := s.ds.SignUp(r.Context(), email, password, r.FormValue("display_name")); err != nil {
		status, msg := s.accountError(err)
		s.renderAccount(w, r, status, nil, msg)
		return
	}
	session, err := s.ds.SignIn(r.Context(), email, password)
	if err != nil {
		status, msg := s.accountError(err)
		s.renderAccount(w, r, status, nil, msg)
		return
	}
	s.setSession(w, session)
	http.Redirect(w, r, "/account?created=1", http.StatusSeeOther)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	session, err := s.ds.SignIn(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		status, msg := s.accountError(err)
		s.renderAccount(w, r, status, nil, msg)
		return
	}
	s.setSession(w, session)
	http.Redirect(w, r, safeReturn(r.FormValue("return"), "/account"), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if err := s.ds.SignOut(r.Context(), c.Value); err != nil {
			s.logger.Warn("sign out", zap.Error(err))
		}
	}
	s.clearSession(w)
	http.Redirect(w, r, "/account", http.StatusSeeOther)
}

func (s *Server) accountError(err error) (int, string) {
	var verr *catalog.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Message
	case errors.Is(err, datasource.ErrNotConfigured):
		return http.StatusConflict, msgRemoteOff
	case errors.Is(err, datasource.ErrEmailTaken):
		return http.StatusConflict, "Un compte existe déjà pour cet email."
	case errors.Is(err, datasource.ErrUnauthorized):
		return http.StatusUnauthorized, "Email ou mot de passe incorrect."
	default:
		s.logger.Warn("account operation", zap.Error(err))
		return http.StatusBadGateway, "Service indisponible, réessayez plus tard."
	}
}
