package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAdminNotFound      = errors.New("admin not found")
	ErrAdminExists        = errors.New("admin already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
)

// AdminRepository is the data access contract for admin users.
type AdminRepository interface {
	Create(ctx context.Context, a *domain.AdminUser) error
	Get(ctx context.Context, id string) (*domain.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.AdminUser, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Sessions runs the SMS second factor. *authsession.Service satisfies it.
type Sessions interface {
	Create(ctx context.Context, in authsession.CreateInput) (*domain.AuthSession, error)
	SendCode(ctx context.Context, id, phone string) (*domain.AuthSession, error)
	VerifyCode(ctx context.Context, id, code string) (*domain.AuthSession, error)
	Consume(ctx context.Context, id string, purpose domain.SessionPurpose) (*domain.AuthSession, error)
}

// ManagerConfig holds the admin cookie settings.
type ManagerConfig struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// Manager handles admin two-factor login and JWT sessions.
type Manager struct {
	admins   AdminRepository
	sessions Sessions
	signer   *Signer
	cfg      ManagerConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewManager creates an admin authentication manager.
func NewManager(admins AdminRepository, sessions Sessions, signer *Signer, cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "immo_admin"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	return &Manager{
		admins:   admins,
		sessions: sessions,
		signer:   signer,
		cfg:      cfg,
		log:      logger.Named("auth"),
		now:      time.Now,
	}
}

// CreateAdmin stores a new active admin with a hashed password.
func (m *Manager) CreateAdmin(ctx context.Context, email, name, phone, password string) (*domain.AdminUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if phone == "" {
		return nil, errors.New("phone is required for the second factor")
	}
	if _, err := m.admins.GetByEmail(ctx, email); err == nil {
		return nil, ErrAdminExists
	} else if !errors.Is(err, ErrAdminNotFound) {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &domain.AdminUser{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Phone:        phone,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    m.now(),
	}
	if err := m.admins.Create(ctx, a); err != nil {
		return nil, err
	}
	m.log.Info("admin created", "admin_id", a.ID, "email", a.Email)
	return a, nil
}

// Login checks the password and sends an SMS code to the admin's phone. The
// returned session id is passed back to VerifyLogin with the code.
func (m *Manager) Login(ctx context.Context, email, password, clientIP string) (*domain.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := m.admins.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAdminNotFound):
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		m.log.Warn("login: unknown admin", "email", email, "ip", clientIP)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	if !CheckPassword(password, a.PasswordHash) || !a.Active {
		m.log.Warn("login: rejected", "admin_id", a.ID, "ip", clientIP, "active", a.Active)
		return nil, ErrInvalidCredentials
	}

	sess, err := m.sessions.Create(ctx, authsession.CreateInput{
		Purpose:  domain.PurposeAdminLogin,
		Phone:    a.Phone,
		Email:    a.Email,
		AdminID:  a.ID,
		ClientIP: clientIP,
	})
	if err != nil {
		return nil, fmt.Errorf("create login session: %w", err)
	}
	sess, err = m.sessions.SendCode(ctx, sess.ID, "")
	if err != nil {
		return nil, err
	}
	m.log.Info("login: code sent", "admin_id", a.ID, "session_id", sess.ID)
	return sess, nil
}

// LoginResult is a completed admin login.
type LoginResult struct {
	Admin     *domain.AdminUser
	Token     string
	ExpiresAt time.Time
}

// VerifyLogin checks the SMS code of a login session and issues the admin
// JWT. The session cannot be reused.
func (m *Manager) VerifyLogin(ctx context.Context, sessionID, code string) (*LoginResult, error) {
	if _, err := m.sessions.VerifyCode(ctx, sessionID, code); err != nil {
		return nil, err
	}
	sess, err := m.sessions.Consume(ctx, sessionID, domain.PurposeAdminLogin)
	if err != nil {
		return nil, err
	}
	a, err := m.admins.Get(ctx, sess.AdminID)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, ErrInvalidCredentials
	}

	tok, exp, err := m.signer.Sign(AudienceAdmin, a.ID, m.cfg.SessionTTL, Claims{Email: a.Email, Name: a.Name})
	if err != nil {
		return nil, err
	}
	now := m.now()
	if err := m.admins.TouchLogin(ctx, a.ID, now); err != nil {
		m.log.Warn("login: touch failed", "admin_id", a.ID, "error", err)
	}
	a.LastLoginAt = &now
	m.log.Info("login: admin signed in", "admin_id", a.ID)
	return &LoginResult{Admin: a, Token: tok, ExpiresAt: exp}, nil
}

// SetSessionCookie stores the admin token in an HttpOnly cookie.
func (m *Manager) SetSessionCookie(w http.ResponseWriter, res *LoginResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		MaxAge:   int(time.Until(res.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie logs the browser out.
func (m *Manager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Authenticate returns the admin of a request, from the session cookie or
// an "Authorization: Bearer" header.
func (m *Manager) Authenticate(r *http.Request) (*Principal, error) {
	tok := ""
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		tok = c.Value
	}
	if h := r.Header.Get("Authorization"); tok == "" && strings.HasPrefix(h, "Bearer ") {
		tok = strings.TrimPrefix(h, "Bearer ")
	}
	if tok == "" {
		return nil, ErrUnauthorized
	}
	c, err := m.signer.Parse(AudienceAdmin, tok)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return &Principal{AdminID: c.Subject, Email: c.Email, Name: c.Name}, nil
}

// RequireAdmin rejects requests without a valid admin token and stores the
// principal in the request context.
func (m *Manager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Me returns the signed-in admin.
func (m *Manager) Me(ctx context.Context) (*domain.AdminUser, error) {
	p := PrincipalFrom(ctx)
	if p == nil {
		return nil, ErrUnauthorized
	}
	return m.admins.Get(ctx, p.AdminID)
}
