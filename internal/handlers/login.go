package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/protect"
	"github.com/aabbtree77/headless/internal/store"
)

// Credentials checks a username and password pair.
type Credentials interface {
	Login(ctx context.Context, username, password string) (store.User, error)
}

type SessionCreator interface {
	Create(ctx context.Context, userID int64, token string, expires time.Time) (store.Session, error)
}

type LoginHandler struct {
	SiteName    string
	AdminPrefix string
	Auth        Credentials
	Sessions    SessionCreator
	TTL         time.Duration

	// Guards run on POST only; showing the form is free.
	Guards []protect.Guard
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginPage struct {
	page
	Action     string
	RedirectTo string
	Username   string
	Error      string
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.form(w, r, http.StatusOK, r.URL.Query().Get("redirect_to"), "", "")
	case http.MethodPost:
		if !protect.Run(h.Guards, w, r) {
			return
		}
		h.login(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (h *LoginHandler) form(w http.ResponseWriter, r *http.Request, status int, redirectTo, username, msg string) {
	render(w, status, "login", loginPage{
		page:       page{Title: "Log In", SiteName: h.SiteName},
		Action:     h.AdminPrefix + "/login",
		RedirectTo: redirectTo,
		Username:   username,
		Error:      msg,
	})
}

func (h *LoginHandler) login(w http.ResponseWriter, r *http.Request) {
	asJSON := isJSON(r)

	var in LoginInput
	redirectTo := ""
	if asJSON {
		if err := decodeJSON(r, &in); err != nil {
			if protect.IsPayloadTooLarge(err) {
				httpx.PayloadTooLarge(w)
				return
			}
			httpx.BadRequest(w, "invalid json")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			if protect.IsPayloadTooLarge(err) {
				httpx.PayloadTooLarge(w)
				return
			}
			httpx.BadRequest(w, "invalid form")
			return
		}
		in.Username = r.PostForm.Get("username")
		in.Password = r.PostForm.Get("password")
		redirectTo = r.PostForm.Get("redirect_to")
	}

	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		if asJSON {
			httpx.BadRequest(w, "username and password required")
			return
		}
		h.form(w, r, http.StatusBadRequest, redirectTo, in.Username, "Username and password are required.")
		return
	}

	user, err := h.Auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			logger.Error("login lookup", "username", in.Username, "err", err)
			httpx.InternalError(w, "cannot check credentials")
			return
		}
		logger.Info("login failed", "username", in.Username, "ip", protect.GetIP(r))
		if asJSON {
			httpx.Unauthorized(w, "invalid credentials")
			return
		}
		h.form(w, r, http.StatusUnauthorized, redirectTo, in.Username, "Invalid username or password.")
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		httpx.InternalError(w, "token generation failed")
		return
	}

	sess, err := h.Sessions.Create(r.Context(), user.ID, token, time.Now().Add(h.TTL))
	if err != nil {
		logger.Error("create session", "user_id", user.ID, "err", err)
		httpx.InternalError(w, "cannot create session")
		return
	}

	auth.SetSessionCookie(w, r, sess.SessionToken, sess.ExpiresAt)
	logger.Info("login", "username", user.Username)

	if asJSON {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"message":  "logged in",
			"username": user.Username,
		})
		return
	}
	http.Redirect(w, r, h.safeRedirect(redirectTo), http.StatusSeeOther)
}

// safeRedirect keeps post-login redirects inside the admin area.
func (h *LoginHandler) safeRedirect(target string) string {
	if target == h.AdminPrefix || strings.HasPrefix(target, h.AdminPrefix+"/") {
		return target
	}
	return h.AdminPrefix + "/settings"
}
