/*
auth.go - Office login and session handling

SESSIONS:
  POST /api/login checks the bcrypt hash and sets an HttpOnly "session"
  cookie carrying an HS256 JWT. Every other /api route goes through
  RequireSession, which accepts the cookie or an "Authorization: Bearer"
  header carrying the same token.

  Sessions are stateless: logout clears the cookie, and a token stays
  valid until it expires (SESSION_TTL).

DEFAULT ACCOUNTS:
  EnsureDefaultUsers seeds admin, muhlis, kullanici1 and kullanici2 with
  password 1234 when the users table is empty.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/shuttle-admin/store/sqlite"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "session"

// ErrInvalidSession is returned for missing, malformed or expired tokens.
var ErrInvalidSession = errors.New("invalid session")

// UserStore looks up office accounts.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*sqlite.User, error)
	GetUser(ctx context.Context, id int64) (*sqlite.User, error)
}

// SessionClaims is the JWT payload of a session.
type SessionClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	Users  UserStore
	Secret []byte
	TTL    time.Duration
	// Secure marks the cookie HTTPS-only (production).
	Secure bool
}

func NewAuthenticator(users UserStore, secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{Users: users, Secret: []byte(secret), TTL: ttl}
}

// Login verifies the credentials and returns the user.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*sqlite.User, error) {
	u, err := a.Users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidSession
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidSession
	}
	return u, nil
}

// Issue signs a session token for u.
func (a *Authenticator) Issue(u sqlite.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.TTL)
	claims := SessionClaims{
		UserID:   u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expires, nil
}

// Parse validates a session token and returns its claims.
func (a *Authenticator) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type sessionKey struct{}

// SessionFrom returns the claims RequireSession stored in ctx.
func SessionFrom(ctx context.Context) (*SessionClaims, bool) {
	c, ok := ctx.Value(sessionKey{}).(*SessionClaims)
	return c, ok
}

// RequireSession rejects requests without a valid session with 401.
func (a *Authenticator) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				raw = c.Value
			}
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Login required", nil)
			return
		}

		claims, err := a.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Session expired or invalid", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, claims)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// =============================================================================
// HANDLERS
// =============================================================================

// Login checks credentials and starts a session.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, "Invalid login request", err)
		return
	}

	u, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidSession) {
		h.requestLogger(r).WithField("username", req.Username).Warn("failed login")
		writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}
	if err != nil {
		h.writeDomainError(w, r, "Failed to log in", err)
		return
	}

	token, expires, err := h.Auth.Issue(*u)
	if err != nil {
		h.writeDomainError(w, r, "Failed to start session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.Auth.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.requestLogger(r).WithField("username", u.Username).Info("user logged in")

	writeJSON(w, http.StatusOK, LoginResponse{User: toUserDTO(*u), ExpiresAt: expires.UTC().Format(time.RFC3339)})
}

// Logout clears the session cookie.
// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Auth.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the logged-in user.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Login required", nil)
		return
	}
	u, err := h.Auth.Users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, "User no longer exists", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

func toUserDTO(u sqlite.User) UserDTO {
	return UserDTO{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

// =============================================================================
// SEEDING
// =============================================================================

// UserSeeder is the store side of EnsureDefaultUsers.
type UserSeeder interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, u sqlite.User) (sqlite.User, error)
}

// DefaultPassword is the initial password of seeded accounts.
const DefaultPassword = "1234"

var defaultUsers = []sqlite.User{
	{Username: "admin", FullName: "Yönetici", Role: "admin"},
	{Username: "muhlis", FullName: "Muhlis", Role: "user"},
	{Username: "kullanici1", FullName: "Kullanıcı 1", Role: "user"},
	{Username: "kullanici2", FullName: "Kullanıcı 2", Role: "user"},
}

// EnsureDefaultUsers seeds the default accounts into an empty users table.
func EnsureDefaultUsers(ctx context.Context, store UserSeeder) error {
	n, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash default password: %w", err)
	}
	for _, u := range defaultUsers {
		u.PasswordHash = string(hash)
		if _, err := store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Username, err)
		}
	}
	logrus.WithField("count", len(defaultUsers)).Warn("seeded default users; change their passwords")
	return nil
}
