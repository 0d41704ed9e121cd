package entity

import (
	"testing"
	"time"
)

func TestSessionValid(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name string
		sess UserSession
		want bool
	}{
		{"active and unexpired", UserSession{IsActive: true, ExpiresAt: future}, true},
		{"expired", UserSession{IsActive: true, ExpiresAt: past}, false},
		{"inactive but unexpired", UserSession{IsActive: false, ExpiresAt: future}, false},
		{"revoked", UserSession{IsActive: true, ExpiresAt: future, RevokedAt: &now}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sess.Valid(now); got != tc.want {
				t.Fatalf("Valid = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	s := UserSession{IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	s.Revoke("logout")
	if s.IsActive || s.RevokedAt == nil {
		t.Fatalf("expected revocation, got %+v", s)
	}
	if s.RevokedReason == nil || *s.RevokedReason != "logout" {
		t.Fatalf("unexpected reason: %v", s.RevokedReason)
	}
	if s.Valid(time.Now()) {
		t.Fatal("revoked session must not be valid")
	}
}
