package domain

import (
	"fmt"
	"strings"
	"time"
)

type AccountID string

type Account struct {
	ID        AccountID
	Name      string
	Proxy     string
	UserAgent string
	// SessionRef points to a secret-store entry holding the web-app init data.
	SessionRef string
}

func (a Account) Validate() error {
	if strings.TrimSpace(string(a.ID)) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(string(a.ID), "/\\ \t") {
		return fmt.Errorf("id %q contains invalid characters", a.ID)
	}
	if a.Proxy != "" {
		if _, err := ParseProxy(a.Proxy); err != nil {
			return err
		}
	}

	return nil
}

// Label renders "Name (id)", or just the id when no name is set.
func (a Account) Label() string {
	if strings.TrimSpace(a.Name) == "" {
		return string(a.ID)
	}

	return fmt.Sprintf("%s (%s)", a.Name, a.ID)
}

type Credentials struct {
	Proxy     *Proxy
	UserAgent string
}

// Session is the bearer token produced by the auth bridge.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s Session) IsExpired(now time.Time) bool {
	if s.Token == "" || s.ExpiresAt.IsZero() {
		return true
	}

	return !now.Before(s.ExpiresAt)
}

// Profile is what the first fetch after authentication reported.
type Profile struct {
	LastClaimAt time.Time
	DeadlineAt  time.Time
	FetchedAt   time.Time
}
