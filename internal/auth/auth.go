package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aabbtree77/headless/internal/store"
)

const (
	SessionCookieName = "headless_sess"
	TokenByteLen      = 32
)

var ErrUnauthenticated = errors.New("auth: unauthenticated")

//
// ──────────────────────────────────────────────
// Password helpers
// ──────────────────────────────────────────────
//

func HashPassword(pwd string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	return string(h), err
}

func ComparePassword(hash, pwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pwd)) == nil
}

//
// ──────────────────────────────────────────────
// Session token helpers
// ──────────────────────────────────────────────
//

func GenerateSessionToken() (string, error) {
	b := make([]byte, TokenByteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

//
// ──────────────────────────────────────────────
// Cookie helpers
// ──────────────────────────────────────────────
//

func SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	}
	if r.TLS != nil {
		c.Secure = true
	}
	http.SetCookie(w, c)
}

func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	}
	if r.TLS != nil {
		c.Secure = true
	}
	http.SetCookie(w, c)
}

//
// ──────────────────────────────────────────────
// Request authentication
// ──────────────────────────────────────────────
//

// UserSource and SessionSource are the store lookups the Authenticator needs.
type UserSource interface {
	GetByUsername(ctx context.Context, username string) (store.User, error)
	GetByID(ctx context.Context, id int64) (store.User, error)
}

type SessionSource interface {
	GetByToken(ctx context.Context, token string) (store.Session, error)
	DeleteByToken(ctx context.Context, token string) error
}

// Authenticator resolves the user behind a request from its session cookie
// or, failing that, HTTP Basic credentials.
type Authenticator struct {
	Users    UserSource
	Sessions SessionSource
	Now      func() time.Time
}

func NewAuthenticator(users UserSource, sessions SessionSource) *Authenticator {
	return &Authenticator{Users: users, Sessions: sessions, Now: time.Now}
}

// Authenticate returns ErrUnauthenticated when the request carries no valid
// credentials. Other errors come from the store.
func (a *Authenticator) Authenticate(r *http.Request) (store.User, error) {
	ctx := r.Context()

	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		u, err := a.fromSession(ctx, c.Value)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return store.User{}, err
		}
	}

	if username, password, ok := r.BasicAuth(); ok {
		return a.fromPassword(ctx, username, password)
	}

	return store.User{}, ErrUnauthenticated
}

// Login checks a username and password pair.
func (a *Authenticator) Login(ctx context.Context, username, password string) (store.User, error) {
	return a.fromPassword(ctx, username, password)
}

func (a *Authenticator) fromSession(ctx context.Context, token string) (store.User, error) {
	sess, err := a.Sessions.GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUnauthenticated
	}
	if err != nil {
		return store.User{}, err
	}

	if a.now().After(sess.ExpiresAt) {
		_ = a.Sessions.DeleteByToken(ctx, token)
		return store.User{}, ErrUnauthenticated
	}

	u, err := a.Users.GetByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUnauthenticated
	}
	return u, err
}

func (a *Authenticator) fromPassword(ctx context.Context, username, password string) (store.User, error) {
	if username == "" || password == "" {
		return store.User{}, ErrUnauthenticated
	}
	u, err := a.Users.GetByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUnauthenticated
	}
	if err != nil {
		return store.User{}, err
	}
	if !ComparePassword(u.PasswordHash, password) {
		return store.User{}, ErrUnauthenticated
	}
	return u, nil
}

func (a *Authenticator) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
