package instagram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"foodmap-backend/internal/logger"
	"foodmap-backend/internal/store"
	"foodmap-backend/models"
)

// SessionStore is the persistence surface the auth manager needs. Implemented
// by *store.SessionStore.
type SessionStore interface {
	Load(ctx context.Context, account string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Clear(ctx context.Context, account string) error
}

// authenticator is the slice of the source client used for login flows.
type authenticator interface {
	Login(ctx context.Context, account, password string) (*models.Session, error)
	TwoFactorLogin(ctx context.Context, account, identifier, code string) (*models.Session, error)
}

// Manager owns the authenticated sessions. It reuses the persisted session
// optimistically, collapses concurrent logins for the same account into one
// attempt, and tracks pending two-factor challenges for the two-step HTTP
// login flow.
type Manager struct {
	sessions         SessionStore
	source           authenticator
	twoFactorRetries int

	group singleflight.Group

	mu      sync.Mutex
	active  map[string]*models.Session
	pending map[string]string // account -> two-factor identifier
}

func NewManager(sessions SessionStore, source authenticator, twoFactorRetries int) *Manager {
	return &Manager{
		sessions:         sessions,
		source:           source,
		twoFactorRetries: twoFactorRetries,
		active:           make(map[string]*models.Session),
		pending:          make(map[string]string),
	}
}

// EnsureAuthenticated returns a usable session for the account. Order of
// preference: in-memory session, persisted session, fresh login with the
// supplier's credentials. A persisted session is reused without validation;
// callers discover staleness via ErrUnauthenticated on first use and then
// Invalidate before retrying. When supplier is nil and no stored session
// exists, the result is an invalid_credentials AuthError, never a prompt.
func (m *Manager) EnsureAuthenticated(ctx context.Context, account string, supplier CredentialSupplier) (*models.Session, error) {
	m.mu.Lock()
	if session, ok := m.active[account]; ok && session.Valid {
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	result, err, _ := m.group.Do(account, func() (interface{}, error) {
		return m.authenticate(ctx, account, supplier)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Session), nil
}

func (m *Manager) authenticate(ctx context.Context, account string, supplier CredentialSupplier) (*models.Session, error) {
	// Another caller may have finished while we waited on the flight group
	m.mu.Lock()
	if session, ok := m.active[account]; ok && session.Valid {
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	session, err := m.sessions.Load(ctx, account)
	if err == nil && session.Valid {
		m.adopt(session)
		logger.Debug("Reusing persisted session", "account", account)
		return session, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if supplier == nil {
		return nil, &AuthError{Reason: ReasonInvalidCredentials, Err: fmt.Errorf("no stored session for %s and no credentials supplied", account)}
	}

	password, err := supplier.Password(ctx)
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidCredentials, Err: err}
	}

	session, err = m.login(ctx, account, password, supplier)
	if err != nil {
		return nil, err
	}

	m.adopt(session)
	if err := m.sessions.Save(ctx, session); err != nil {
		// Session works for this run even if persistence failed
		logger.Error("Failed to persist session", "account", account, "error", err)
	}
	logger.Info("Authenticated with source", "account", account)
	return session, nil
}

func (m *Manager) login(ctx context.Context, account, password string, supplier CredentialSupplier) (*models.Session, error) {
	session, err := m.source.Login(ctx, account, password)
	if err == nil {
		return session, nil
	}

	var challenge *TwoFactorRequiredError
	if !errors.As(err, &challenge) {
		return nil, mapLoginError(err)
	}

	if m.twoFactorRetries <= 0 {
		return nil, &AuthError{Reason: ReasonTwoFactorUnsupported, Err: err}
	}

	for attempt := 0; attempt < m.twoFactorRetries; attempt++ {
		code, err := supplier.TwoFactorCode(ctx)
		if err != nil {
			return nil, &AuthError{Reason: ReasonTwoFactorUnsupported, Err: err}
		}
		session, err = m.source.TwoFactorLogin(ctx, account, challenge.Identifier, code)
		if err == nil {
			return session, nil
		}
		logger.Warn("Two-factor attempt failed", "account", account, "attempt", attempt+1)
	}
	return nil, &AuthError{Reason: ReasonInvalidCredentials, Err: fmt.Errorf("two-factor verification exhausted")}
}

// Login starts the two-step HTTP login flow. On a two-factor challenge it
// parks the identifier and returns ErrTwoFactorRequired; the caller finishes
// with VerifyTwoFactor.
func (m *Manager) Login(ctx context.Context, account, password string) error {
	session, err := m.source.Login(ctx, account, password)
	if err != nil {
		var challenge *TwoFactorRequiredError
		if errors.As(err, &challenge) {
			m.mu.Lock()
			m.pending[account] = challenge.Identifier
			m.mu.Unlock()
			return ErrTwoFactorRequired
		}
		return mapLoginError(err)
	}

	m.adopt(session)
	return m.sessions.Save(ctx, session)
}

// VerifyTwoFactor completes a login parked by Login.
func (m *Manager) VerifyTwoFactor(ctx context.Context, account, code string) error {
	m.mu.Lock()
	identifier, ok := m.pending[account]
	m.mu.Unlock()
	if !ok {
		return &AuthError{Reason: ReasonInvalidCredentials, Err: fmt.Errorf("no pending two-factor challenge for %s", account)}
	}

	session, err := m.source.TwoFactorLogin(ctx, account, identifier, code)
	if err != nil {
		return mapLoginError(err)
	}

	m.mu.Lock()
	delete(m.pending, account)
	m.mu.Unlock()

	m.adopt(session)
	return m.sessions.Save(ctx, session)
}

// Invalidate drops the in-memory session and marks the persisted one stale.
// The next EnsureAuthenticated performs a fresh login.
func (m *Manager) Invalidate(ctx context.Context, account string) error {
	m.mu.Lock()
	delete(m.active, account)
	m.mu.Unlock()

	session, err := m.sessions.Load(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	session.Valid = false
	return m.sessions.Save(ctx, session)
}

// Logout discards both the in-memory and the persisted session.
func (m *Manager) Logout(ctx context.Context, account string) error {
	m.mu.Lock()
	delete(m.active, account)
	delete(m.pending, account)
	m.mu.Unlock()
	return m.sessions.Clear(ctx, account)
}

// IsLoggedIn reports whether a usable session is held in memory or persisted.
func (m *Manager) IsLoggedIn(ctx context.Context, account string) bool {
	m.mu.Lock()
	if session, ok := m.active[account]; ok && session.Valid {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	session, err := m.sessions.Load(ctx, account)
	return err == nil && session.Valid
}

func (m *Manager) adopt(session *models.Session) {
	m.mu.Lock()
	m.active[session.Account] = session
	m.mu.Unlock()
}

func mapLoginError(err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return &AuthError{Reason: ReasonRateLimited, RetryAfter: rateErr.RetryAfter, Err: err}
	}
	return &AuthError{Reason: ReasonNetwork, Err: err}
}
