package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldsafe/fieldsafe/pkg/apperr"
	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// Options configures the auth service.
type Options struct {
	// SessionTTL is how long a login session stays valid.
	SessionTTL time.Duration
	// BcryptCost is used when hashing PINs. Zero means bcrypt.DefaultCost.
	BcryptCost int
	// CookieName is the session cookie name.
	CookieName string
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
	// SignatureLockout is how long signature PIN verification is locked
	// after too many failed attempts.
	SignatureLockout time.Duration
	// SignatureMaxAttempts is the failed-attempt threshold that trips the
	// lockout. Zero means 3.
	SignatureMaxAttempts int
}

func (o *Options) applyDefaults() {
	if o.SessionTTL <= 0 {
		o.SessionTTL = 12 * time.Hour
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = bcrypt.DefaultCost
	}
	if o.CookieName == "" {
		o.CookieName = "fieldsafe_session"
	}
	if o.SignatureLockout <= 0 {
		o.SignatureLockout = 5 * time.Minute
	}
	if o.SignatureMaxAttempts <= 0 {
		o.SignatureMaxAttempts = 3
	}
}

// signatureState tracks failed signature PIN attempts for one user.
type signatureState struct {
	failures    int
	lockedUntil time.Time
}

// Service implements PIN login, session management, and the signature PIN.
type Service struct {
	store  storage.Store
	opts   Options
	logger *observability.Logger

	mu        sync.Mutex
	sigStates map[int64]*signatureState

	now func() time.Time
}

// NewService creates an auth service backed by the given store.
func NewService(store storage.Store, opts Options, logger *observability.Logger) *Service {
	opts.applyDefaults()
	return &Service{
		store:     store,
		opts:      opts,
		logger:    logger,
		sigStates: make(map[int64]*signatureState),
		now:       time.Now,
	}
}

// Options returns the effective options after defaults were applied.
func (s *Service) Options() Options {
	return s.opts
}

// LoginWithPIN authenticates an email/PIN pair and mints a session. The
// returned token is the plaintext session token for the cookie; it is not
// stored anywhere.
func (s *Service) LoginWithPIN(ctx context.Context, email, pin string) (*Principal, string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, "", apperr.Unauthenticated("invalid email or PIN")
		}
		return nil, "", fmt.Errorf("failed to look up user for login: %w", err)
	}
	if !user.Active {
		return nil, "", apperr.Unauthenticated("account is deactivated")
	}
	if user.PINHash == "" {
		return nil, "", apperr.Unauthenticated("PIN login is not set up for this account")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(pin)) != nil {
		s.logger.WithField("email", email).Warn("failed PIN login attempt")
		return nil, "", apperr.Unauthenticated("invalid email or PIN")
	}

	token, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return principalFor(user), token, nil
}

// CreateSessionFor mints a session for an already-verified user. Used by
// the SSO callback after the identity provider vouched for the login.
func (s *Service) CreateSessionFor(ctx context.Context, user *storage.User) (*Principal, string, error) {
	if !user.Active {
		return nil, "", apperr.Unauthenticated("account is deactivated")
	}
	token, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return principalFor(user), token, nil
}

func (s *Service) createSession(ctx context.Context, userID int64) (string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	session := &storage.Session{
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return token, nil
}

// Authenticate resolves a session token to its principal.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	session, err := s.store.GetSession(ctx, HashToken(token))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthenticated("invalid or expired session")
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if !session.ExpiresAt.After(s.now()) {
		return nil, apperr.Unauthenticated("invalid or expired session")
	}
	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthenticated("invalid or expired session")
		}
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if !user.Active {
		return nil, apperr.Unauthenticated("account is deactivated")
	}
	return principalFor(user), nil
}

// Logout deletes the session for the given token. Unknown tokens are not
// an error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, HashToken(token)); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry. Run from cron.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().UTC())
}

// SetPIN hashes and stores a login PIN for the user. Admin-initiated
// resets pass an empty currentPIN together with force.
func (s *Service) SetPIN(ctx context.Context, userID int64, currentPIN, newPIN string, force bool) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}
	if !force {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.PINHash != "" && bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(currentPIN)) != nil {
			return apperr.Unauthenticated("current PIN is incorrect")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPIN), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	return s.store.SetPINHash(ctx, userID, string(hash))
}

// SetSignature stores the user's signature image key locked behind a
// signature PIN. The PIN can only be set once.
func (s *Service) SetSignature(ctx context.Context, userID int64, signatureKey, pin string) error {
	if signatureKey == "" {
		return apperr.Validation("signature key is required")
	}
	if err := validatePIN(pin); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash signature PIN: %w", err)
	}
	return s.store.SetSignature(ctx, userID, signatureKey, string(hash))
}

// VerifySignaturePIN checks the signature PIN and returns the signature
// image key on success. Repeated failures lock verification for the
// configured window.
func (s *Service) VerifySignaturePIN(ctx context.Context, userID int64, pin string) (string, error) {
	now := s.now()

	s.mu.Lock()
	state := s.sigStates[userID]
	if state != nil && state.lockedUntil.After(now) {
		remaining := state.lockedUntil.Sub(now).Round(time.Second)
		s.mu.Unlock()
		return "", apperr.Forbidden("signature PIN is locked, try again in %s", remaining)
	}
	s.mu.Unlock()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.SignaturePINHash == "" {
		return "", apperr.InvalidState("signature PIN is not set for user %d", userID)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.SignaturePINHash), []byte(pin)) != nil {
		s.mu.Lock()
		if state == nil {
			state = &signatureState{}
			s.sigStates[userID] = state
		}
		state.failures++
		if state.failures >= s.opts.SignatureMaxAttempts {
			state.lockedUntil = now.Add(s.opts.SignatureLockout)
			state.failures = 0
			s.mu.Unlock()
			s.logger.WithField("user_id", userID).Warn("signature PIN locked after repeated failures")
			return "", apperr.Forbidden("signature PIN is locked, try again in %s", s.opts.SignatureLockout)
		}
		s.mu.Unlock()
		return "", apperr.Unauthenticated("signature PIN is incorrect")
	}

	s.mu.Lock()
	delete(s.sigStates, userID)
	s.mu.Unlock()
	return user.SignatureKey, nil
}

// SessionCookie builds the HTTP-only cookie carrying the session token.
func (s *Service) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie builds a cookie that clears the session on the client.
func (s *Service) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func principalFor(user *storage.User) *Principal {
	return &Principal{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	}
}

func validatePIN(pin string) error {
	if len(pin) < 4 || len(pin) > 8 {
		return apperr.Validation("PIN must be 4 to 8 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return apperr.Validation("PIN must be 4 to 8 digits")
		}
	}
	return nil
}
