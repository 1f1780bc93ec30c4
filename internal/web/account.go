package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"confprog/internal/accounts"
	"confprog/internal/bookmark"
	appLog "confprog/internal/log"
	"confprog/internal/metrics"
)

// User-facing messages.
const (
	msgCredentialsRequired = "Benutzername und Passwort erforderlich."
	msgUsernameLength      = "Benutzername muss zwischen 3 und 30 Zeichen lang sein."
	msgPasswordLength      = "Passwort muss mindestens 8 Zeichen lang sein."
	msgUsernameTaken       = "Benutzername bereits vergeben."
	msgInvalidCredentials  = "Ungültige Anmeldedaten."
	msgNotLoggedIn         = "Nicht eingeloggt."
	msgUserNotFound        = "Benutzer nicht gefunden."
	msgInvalidData         = "Ungültige Daten."
	msgInternal            = "Interner Fehler."

	msgRegistered   = "Registrierung erfolgreich."
	msgLoggedIn     = "Login erfolgreich."
	msgLoggedOut    = "Logout erfolgreich."
	msgProgramSaved = "Programm gespeichert."
)

type credentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=8"`
}

// accountResponse is the body of /api/me and a successful /api/login.
type accountResponse struct {
	Message       string   `json:"message,omitempty"`
	Username      string   `json:"username"`
	SavedSessions []string `json:"saved_sessions"`
	SavedPosters  []string `json:"saved_posters"`
	SavedTalks    []string `json:"saved_talks"`
}

func newAccountResponse(u *accounts.User, msg string) accountResponse {
	return accountResponse{
		Message:       msg,
		Username:      u.Username,
		SavedSessions: u.Saved.Sessions,
		SavedPosters:  u.Saved.Posters,
		SavedTalks:    u.Saved.Talks,
	}
}

// readCredentials decodes the body and trims the username. Missing fields
// yield ok=false after the 400 has been written.
func (s *Server) readCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, msgCredentialsRequired)
		return req, false
	}
	return req, true
}

// validationMessage maps the first failing field to its message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgInvalidData
	}
	switch verrs[0].Field() {
	case "Username":
		return msgUsernameLength
	case "Password":
		return msgPasswordLength
	}
	return msgInvalidData
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readCredentials(w, r)
	if !ok {
		s.metrics.CountRegistration(metrics.Invalid)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.metrics.CountRegistration(metrics.Invalid)
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	err := s.accounts.Create(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, accounts.ErrUserExists):
		s.metrics.CountRegistration(metrics.Failed)
		writeError(w, http.StatusConflict, msgUsernameTaken)
		return
	case err != nil:
		s.metrics.CountRegistration(metrics.Failed)
		appLog.Error("register failed", err, "user", req.Username)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	s.metrics.CountRegistration(metrics.OK)
	appLog.Info("user registered", "user", req.Username)
	writeMessage(w, http.StatusCreated, msgRegistered)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readCredentials(w, r)
	if !ok {
		s.metrics.CountLogin(metrics.Invalid)
		return
	}

	u, err := s.accounts.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		s.metrics.CountLogin(metrics.Failed)
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	case err != nil:
		s.metrics.CountLogin(metrics.Failed)
		appLog.Error("login failed", err, "user", req.Username)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	token, err := s.tokens.Issue(u.Username)
	if err != nil {
		s.metrics.CountLogin(metrics.Failed)
		appLog.Error("issue session token failed", err, "user", u.Username)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	s.setSessionCookie(w, r, token)

	s.metrics.CountLogin(metrics.OK)
	appLog.Info("user logged in", "user", u.Username)
	writeJSON(w, http.StatusOK, newAccountResponse(u, msgLoggedIn))
}

// handleLogout always succeeds, logged in or not.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w, r)
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	username := currentUser(r.Context())
	u, err := s.accounts.Get(r.Context(), username)
	if errors.Is(err, accounts.ErrNotFound) {
		s.clearSessionCookie(w, r)
		writeError(w, http.StatusUnauthorized, msgUserNotFound)
		return
	}
	if err != nil {
		appLog.Error("load user failed", err, "user", username)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(u, ""))
}

// saveProgramRequest distinguishes a missing sessions list from an empty one.
type saveProgramRequest struct {
	Sessions *[]string `json:"sessions"`
	Posters  *[]string `json:"posters"`
	Talks    *[]string `json:"talks"`
}

func (s *Server) handleSaveProgram(w http.ResponseWriter, r *http.Request) {
	var req saveProgramRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Sessions == nil {
		s.metrics.CountProgramSave(metrics.Invalid)
		writeError(w, http.StatusBadRequest, msgInvalidData)
		return
	}

	snap := bookmark.Snapshot{
		Sessions: *req.Sessions,
		Posters:  derefOrEmpty(req.Posters),
		Talks:    derefOrEmpty(req.Talks),
	}
	username := currentUser(r.Context())
	if err := s.accounts.SaveProgram(r.Context(), username, snap); err != nil {
		s.metrics.CountProgramSave(metrics.Failed)
		if errors.Is(err, accounts.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, msgUserNotFound)
			return
		}
		appLog.Error("save program failed", err, "user", username)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	s.metrics.CountProgramSave(metrics.OK)
	appLog.Debug("program saved", "user", username,
		"sessions", len(snap.Sessions), "posters", len(snap.Posters), "talks", len(snap.Talks))
	writeMessage(w, http.StatusOK, msgProgramSaved)
}

func derefOrEmpty(ids *[]string) []string {
	if ids == nil || *ids == nil {
		return []string{}
	}
	return *ids
}

type ctxKey struct{}

func currentUser(ctx context.Context) string {
	u, _ := ctx.Value(ctxKey{}).(string)
	return u
}

// sessionUser returns the username of a valid session cookie, or "".
func (s *Server) sessionUser(r *http.Request) string {
	c, err := r.Cookie(s.cfg.Session.CookieName)
	if err != nil {
		return ""
	}
	u, err := s.tokens.Parse(c.Value)
	if err != nil {
		appLog.Debug("rejected session cookie", "err", err)
		return ""
	}
	return u
}

// requireLogin answers 401 unless the request carries a valid session.
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := s.sessionUser(r)
		if u == "" {
			writeError(w, http.StatusUnauthorized, msgNotLoggedIn)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	ttl := s.tokens.TTL()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
