package admin

import (
	"net/http"

	"github.com/hazyhaar/ppadmin/auth"
	"github.com/hazyhaar/ppadmin/shield"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if signedIn(r) {
		http.Redirect(w, r, "/upload-data", http.StatusSeeOther)
		return
	}
	state := s.newState()
	auth.SetStateCookie(w, state, s.cfg.SecureCookies)
	http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := shield.GetLogger(ctx)
	q := r.URL.Query()

	state := auth.TakeStateCookie(w, r)
	if state == "" || q.Get("state") != state {
		http.Error(w, "sign-on state mismatch, please sign in again", http.StatusBadRequest)
		return
	}
	if e := q.Get("error"); e != "" {
		logger.Info("admin: sign-on refused", "error", e)
		http.Error(w, "sign-on refused", http.StatusUnauthorized)
		return
	}

	user, err := s.provider.FetchUser(ctx, q.Get("code"))
	if err != nil {
		logger.Error("admin: sign-on exchange", "error", err)
		http.Error(w, "sign-on failed", http.StatusBadGateway)
		return
	}
	claims := user.Claims()
	if !claims.HasPermission(auth.PermissionSignin) {
		logger.Warn("admin: user lacks signin permission", "uid", user.UID)
		http.Error(w, "you do not have permission to sign in", http.StatusForbidden)
		return
	}

	token, err := auth.GenerateToken(s.secret, claims, s.cfg.SessionTTL)
	if err != nil {
		logger.Error("admin: issue session", "error", err)
		http.Error(w, "sign-on failed", http.StatusInternalServerError)
		return
	}
	auth.SetTokenCookie(w, token, s.cfg.SessionTTL, s.cfg.SecureCookies)
	logger.Info("admin: signed in", "uid", user.UID)
	http.Redirect(w, r, "/upload-data", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearTokenCookie(w)
	shield.SetFlash(w, "success", "Signed out")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
