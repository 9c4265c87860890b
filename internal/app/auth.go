package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huahua9185/auto-study-advanced/internal/domain"
	"github.com/huahua9185/auto-study-advanced/internal/ports"
)

// DefaultCaptchaAttempts bounds the tight captcha-retry loop. Challenges are
// single-use and expire in seconds, so a rejection is answered with a fresh
// fetch right away instead of backoff.
const DefaultCaptchaAttempts = 5

// AuthSessionManager owns the login lifecycle. Exactly one valid session
// exists per credential; renewal is serialized so concurrent borrowers wait
// on the in-flight attempt and share its result.
type AuthSessionManager struct {
	logger     zerolog.Logger
	client     *EduClient
	classifier ports.CaptchaClassifier
	cred       domain.Credential

	// CaptchaAttempts overrides DefaultCaptchaAttempts when > 0.
	CaptchaAttempts int

	renew chan struct{} // capacity 1, held by the renewing goroutine

	mu      sync.RWMutex
	session domain.Session
}

func NewAuthSessionManager(logger zerolog.Logger, client *EduClient, classifier ports.CaptchaClassifier, cred domain.Credential) *AuthSessionManager {
	return &AuthSessionManager{
		logger:     logger,
		client:     client,
		classifier: classifier,
		cred:       cred,
		renew:      make(chan struct{}, 1),
	}
}

// Current returns the session without triggering renewal.
func (m *AuthSessionManager) Current() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.session.Valid
}

// Session returns a valid session, logging in if needed. Blocking on the
// renewal slot is a cooperative suspension point and honors ctx.
func (m *AuthSessionManager) Session(ctx context.Context) (domain.Session, error) {
	if s, ok := m.Current(); ok {
		return s, nil
	}

	select {
	case m.renew <- struct{}{}:
	case <-ctx.Done():
		return domain.Session{}, ctx.Err()
	}
	defer func() { <-m.renew }()

	// Another borrower may have finished the renewal while we waited.
	if s, ok := m.Current(); ok {
		return s, nil
	}

	s, err := m.login(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return s, nil
}

// Invalidate drops the session identified by token. A stale token is a
// no-op, so late auth-expired reports cannot kill a fresh session.
func (m *AuthSessionManager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Token == token {
		m.session.Valid = false
	}
}

// IsValid probes the platform for the given session's validity.
func (m *AuthSessionManager) IsValid(ctx context.Context, s domain.Session) (bool, error) {
	if !s.Valid {
		return false, nil
	}
	ok, err := m.client.CheckSession(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		m.Invalidate(s.Token)
	}
	return ok, nil
}

func (m *AuthSessionManager) login(ctx context.Context) (domain.Session, error) {
	if err := m.client.WarmUp(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("landing page warm-up failed")
	}

	encrypted, err := EncryptPassword(m.cred.Password, m.cred.CipherKey)
	if err != nil {
		return domain.Session{}, &AuthError{Kind: AuthInvalidCredentials, Message: "password encryption failed", Err: err}
	}

	attempts := m.CaptchaAttempts
	if attempts <= 0 {
		attempts = DefaultCaptchaAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return domain.Session{}, ctx.Err()
		default:
		}

		image, err := m.client.FetchCaptcha(ctx)
		if err != nil {
			return domain.Session{}, err
		}
		code, err := m.classifier.Classify(ctx, image)
		if err != nil || !plausibleCaptcha(code) {
			m.logger.Debug().Int("attempt", attempt).Str("code", code).Msg("captcha classification unusable, refetching")
			continue
		}

		result, err := m.client.Login(ctx, m.cred.Username, encrypted, code)
		if err != nil {
			return domain.Session{}, err
		}
		if result.OK() {
			s := domain.Session{
				Token:     result.SystemUUID,
				UserID:    result.UserID,
				Realname:  result.User.Realname,
				Cookies:   m.client.Cookies(),
				CreatedAt: time.Now().UTC(),
				Valid:     true,
			}
			m.client.SetToken(result.SystemUUID)
			m.logger.Info().Int("attempt", attempt).Str("realname", s.Realname).Msg("login ok")
			return s, nil
		}
		if isCaptchaComplaint(result.Message) {
			m.logger.Debug().Int("attempt", attempt).Str("message", result.Message).Msg("captcha rejected, refetching")
			continue
		}
		return domain.Session{}, &AuthError{Kind: AuthInvalidCredentials, Message: result.Message}
	}

	return domain.Session{}, &AuthError{Kind: AuthCaptchaRejected, Message: "captcha attempts exhausted"}
}

func plausibleCaptcha(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// The platform reports captcha failures only through its human-readable
// message field.
func isCaptchaComplaint(message string) bool {
	return strings.Contains(message, "验证码") || strings.Contains(message, "校验码")
}
