package entity

import (
	"time"

	"ghostid.org/internal/ids"
)

// UserSession is one issued login session for a user. It composes
// Timestamps only; sessions are revoked, never soft-deleted.
type UserSession struct {
	ID           string
	UserID       string
	Token        string
	RefreshToken *string

	// Client metadata
	IPAddress *string
	UserAgent *string
	DeviceID  *string

	// Expiration
	ExpiresAt        time.Time
	RefreshExpiresAt *time.Time

	// Status
	IsActive      bool
	RevokedAt     *time.Time
	RevokedReason *string

	Timestamps
}

func (s *UserSession) Table() string    { return "user_sessions" }
func (s *UserSession) EntityID() string { return s.ID }

func (s *UserSession) InitDefaults() {
	s.ID = ids.New()
	s.IsActive = true
	s.initTimestamps()
}

// Expired reports whether the session expiry has passed at now.
func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Valid holds iff the session is active, unexpired and not revoked. The three
// conditions are independently settable; an inactive session can still be
// unexpired.
func (s *UserSession) Valid(now time.Time) bool {
	return s.IsActive && !s.Expired(now) && s.RevokedAt == nil
}

// Revoke deactivates the session and records the instant and reason.
func (s *UserSession) Revoke(reason string) {
	now := time.Now().UTC()
	s.IsActive = false
	s.RevokedAt = &now
	if reason != "" {
		s.RevokedReason = &reason
	}
}

var sessionDescriptor = &Descriptor[*UserSession]{
	TableName: "user_sessions",
	Columns: []string{
		"id", "user_id", "token", "refresh_token",
		"ip_address", "user_agent", "device_id",
		"expires_at", "refresh_expires_at",
		"is_active", "revoked_at", "revoked_reason",
		"created_at", "updated_at",
	},
	New: func() *UserSession { return &UserSession{} },
	Fields: map[string]Field[*UserSession]{
		"id": {
			Value:  func(s *UserSession) any { return s.ID },
			Assign: func(s *UserSession, v any) error { return setString(&s.ID, v) },
		},
		"user_id": {
			Value:  func(s *UserSession) any { return s.UserID },
			Assign: func(s *UserSession, v any) error { return setString(&s.UserID, v) },
		},
		"token": {
			Value:  func(s *UserSession) any { return s.Token },
			Assign: func(s *UserSession, v any) error { return setString(&s.Token, v) },
		},
		"refresh_token": {
			Value:  func(s *UserSession) any { return s.RefreshToken },
			Assign: func(s *UserSession, v any) error { return setStringPtr(&s.RefreshToken, v) },
		},
		"ip_address": {
			Value:  func(s *UserSession) any { return s.IPAddress },
			Assign: func(s *UserSession, v any) error { return setStringPtr(&s.IPAddress, v) },
		},
		"user_agent": {
			Value:  func(s *UserSession) any { return s.UserAgent },
			Assign: func(s *UserSession, v any) error { return setStringPtr(&s.UserAgent, v) },
		},
		"device_id": {
			Value:  func(s *UserSession) any { return s.DeviceID },
			Assign: func(s *UserSession, v any) error { return setStringPtr(&s.DeviceID, v) },
		},
		"expires_at": {
			Value:  func(s *UserSession) any { return s.ExpiresAt },
			Assign: func(s *UserSession, v any) error { return setTime(&s.ExpiresAt, v) },
		},
		"refresh_expires_at": {
			Value:  func(s *UserSession) any { return s.RefreshExpiresAt },
			Assign: func(s *UserSession, v any) error { return setTimePtr(&s.RefreshExpiresAt, v) },
		},
		"is_active": {
			Value:  func(s *UserSession) any { return s.IsActive },
			Assign: func(s *UserSession, v any) error { return setBool(&s.IsActive, v) },
		},
		"revoked_at": {
			Value:  func(s *UserSession) any { return s.RevokedAt },
			Assign: func(s *UserSession, v any) error { return setTimePtr(&s.RevokedAt, v) },
		},
		"revoked_reason": {
			Value:  func(s *UserSession) any { return s.RevokedReason },
			Assign: func(s *UserSession, v any) error { return setStringPtr(&s.RevokedReason, v) },
		},
		"created_at": {
			Value:  func(s *UserSession) any { return s.CreatedAt },
			Assign: func(s *UserSession, v any) error { return setTime(&s.CreatedAt, v) },
		},
		"updated_at": {
			Value:  func(s *UserSession) any { return s.UpdatedAt },
			Assign: func(s *UserSession, v any) error { return setTime(&s.UpdatedAt, v) },
		},
	},
	ScanDest: func(s *UserSession) []any {
		return []any{
			&s.ID, &s.UserID, &s.Token, &s.RefreshToken,
			&s.IPAddress, &s.UserAgent, &s.DeviceID,
			&s.ExpiresAt, &s.RefreshExpiresAt,
			&s.IsActive, &s.RevokedAt, &s.RevokedReason,
			&s.CreatedAt, &s.UpdatedAt,
		}
	},
	KeyDest: func(s *UserSession) []any {
		return []any{&s.ID, &s.CreatedAt, &s.UpdatedAt}
	},
}

// UserSessions returns the field registry for the UserSession entity.
func UserSessions() *Descriptor[*UserSession] { return sessionDescriptor }
