// Package identity issues and validates login sessions on top of the
// repository layer: credential checks, signed access tokens, opaque refresh
// tokens and per-identifier login throttling.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ghostid.org/internal/entity"
	"ghostid.org/internal/obs"
	"ghostid.org/internal/repo"
)

const (
	defaultIssuer     = "ghostid"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
	defaultBurst      = 5
	revokeBatch       = 100
)

// TokenPair carries the tokens issued for one login session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
}

// ClientMeta describes the client a session was opened from. Empty fields
// are stored as unset.
type ClientMeta struct {
	IP        string
	UserAgent string
	DeviceID  string
}

// Service provides login, validation, refresh and logout over the identity
// repositories. It expects non-blocking sessions; every operation takes a
// context.
type Service struct {
	users    *repo.UserRepository
	sessions *repo.Repository[*entity.UserSession]

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	throttle rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithThrottle configures the per-identifier login rate limit.
func WithThrottle(limit rate.Limit, burst int) ServiceOption {
	return func(s *Service) error {
		if limit > 0 {
			s.throttle = limit
		}
		if burst > 0 {
			s.burst = burst
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service with optional configuration.
func NewService(users *repo.UserRepository, sessions *repo.Repository[*entity.UserSession], secret string, opts ...ServiceOption) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity: token secret is required")
	}
	svc := &Service{
		users:      users,
		sessions:   sessions,
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
		throttle:   rate.Every(time.Second),
		burst:      defaultBurst,
		limiters:   map[string]*rate.Limiter{},
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login verifies credentials and opens a session. The failure reason is
// never surfaced; a throttled identifier fails with ErrThrottled before any
// credential check runs.
func (s *Service) Login(ctx context.Context, identifier, password string, meta ClientMeta) (*entity.User, *TokenPair, error) {
	if !s.limiter(identifier).Allow() {
		obs.CountAuthAttempt("throttled")
		return nil, nil, ErrThrottled
	}

	u, ok, err := s.users.AuthenticateContext(ctx, identifier, password)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrAuthFailed
	}
	if err := s.users.AttachRolesContext(ctx, u); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuePair(u)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.sessions.CreateContext(ctx, repo.Conditions{
		"user_id":            u.ID,
		"token":              pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"ip_address":         orNil(meta.IP),
		"user_agent":         orNil(meta.UserAgent),
		"device_id":          orNil(meta.DeviceID),
		"expires_at":         pair.ExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
	}); err != nil {
		return nil, nil, err
	}
	if _, err := s.users.RecordAuditContext(ctx, u.ID, "login", u.ID, map[string]any{"ip": meta.IP}); err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Validate checks an access token and returns its principal with roles
// attached. The backing session row must still be valid; a revoked or
// expired session invalidates an otherwise well-formed token.
func (s *Service) Validate(ctx context.Context, token string) (*entity.User, *Claims, error) {
	claims, err := parseToken(s.secret, s.issuer, token)
	if err != nil {
		return nil, nil, err
	}
	sess, found, err := s.sessions.GetByContext(ctx, repo.Conditions{"token": token})
	if err != nil {
		return nil, nil, err
	}
	if !found || !sess.Valid(s.now()) {
		return nil, nil, ErrInvalidToken
	}
	u, found, err := s.users.GetContext(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if !found || u.Deleted() || !u.IsActive {
		return nil, nil, ErrInvalidToken
	}
	if err := s.users.AttachRolesContext(ctx, u); err != nil {
		return nil, nil, err
	}
	return u, claims, nil
}

// Refresh rotates a session's token pair. The old access and refresh tokens
// stop working once the rotation is persisted. Only the refresh window
// governs here; an expired access token is the normal reason to refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sess, found, err := s.sessions.GetByContext(ctx, repo.Conditions{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !found || !sess.IsActive || sess.RevokedAt != nil {
		return nil, ErrInvalidToken
	}
	if sess.RefreshExpiresAt == nil || now.After(*sess.RefreshExpiresAt) {
		return nil, ErrInvalidToken
	}
	u, found, err := s.users.GetContext(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !found || u.Deleted() || !u.IsActive {
		return nil, ErrInvalidToken
	}
	if err := s.users.AttachRolesContext(ctx, u); err != nil {
		return nil, err
	}
	pair, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.sessions.UpdateContext(ctx, sess.ID, repo.Conditions{
		"token":              pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"expires_at":         pair.ExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the session behind the given access token. A token with no
// backing session is not an error; the return reports whether one existed.
func (s *Service) Logout(ctx context.Context, token, reason string) (bool, error) {
	sess, found, err := s.sessions.GetByContext(ctx, repo.Conditions{"token": token})
	if err != nil || !found {
		return false, err
	}
	now := s.now()
	fields := repo.Conditions{
		"is_active":  false,
		"revoked_at": now,
	}
	if reason != "" {
		fields["revoked_reason"] = reason
	}
	if _, _, err := s.sessions.UpdateContext(ctx, sess.ID, fields); err != nil {
		return false, err
	}
	if _, err := s.users.RecordAuditContext(ctx, sess.UserID, "logout", sess.UserID, nil); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeAll revokes every active session of a user and reports how many
// were revoked. Sessions are fetched in batches until none remain active,
// so users with more sessions than one page are fully covered.
func (s *Service) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	total := 0
	for {
		active, err := s.sessions.GetAllContext(ctx, repo.ListOptions{
			Filters: repo.Conditions{"user_id": userID, "is_active": true},
			Limit:   revokeBatch,
		})
		if err != nil {
			return total, err
		}
		if len(active) == 0 {
			return total, nil
		}
		now := s.now()
		for _, sess := range active {
			fields := repo.Conditions{
				"is_active":  false,
				"revoked_at": now,
			}
			if reason != "" {
				fields["revoked_reason"] = reason
			}
			if _, _, err := s.sessions.UpdateContext(ctx, sess.ID, fields); err != nil {
				return total, err
			}
			total++
		}
	}
}

func (s *Service) issuePair(u *entity.User) (*TokenPair, error) {
	now := s.now()
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, role.Name)
	}
	access, err := signToken(s.secret, s.issuer, u.ID, roles, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresAt:        now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

func (s *Service) limiter(identifier string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[identifier]
	if !ok {
		l = rate.NewLimiter(s.throttle, s.burst)
		s.limiters[identifier] = l
	}
	return l
}

func orNil(v string) any {
	if v == "" {
		return nil
	}
	return v
}
