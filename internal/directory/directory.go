// Package directory is the subscriber registry: identity plus
// subscription-expiration lookups.
package directory

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("directory: subscriber not found")
	ErrInvalidExpires = errors.New("directory: invalid expiration date")
)

var expiresRe = regexp.MustCompile(`^\d{8}$`)

// Subscriber is one registered recipient. ExpiresOn is a calendar date in
// YYYYMMDD form; the subscription is active through that date.
type Subscriber struct {
	Identifier string `toml:"identifier" json:"identifier"`
	ExpiresOn  string `toml:"expires_on" json:"expires_on"`
}

func (s Subscriber) Validate() error {
	if strings.TrimSpace(s.Identifier) == "" {
		return errors.New("directory: subscriber missing identifier")
	}
	if _, err := ParseExpiresOn(s.ExpiresOn); err != nil {
		return err
	}
	return nil
}

// ParseExpiresOn parses a YYYYMMDD date.
func ParseExpiresOn(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if !expiresRe.MatchString(raw) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpires, raw)
	}
	t, err := time.ParseInLocation("20060102", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpires, raw)
	}
	return t, nil
}

// NormalizeExpiresOn accepts YYYYMMDD, YYYY-MM-DD or YYYY/MM/DD input.
func NormalizeExpiresOn(raw string) (string, error) {
	cleaned := strings.NewReplacer("-", "", "/", "").Replace(strings.TrimSpace(raw))
	if _, err := ParseExpiresOn(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}

// Active reports whether the subscription covers now. The expiry date
// itself still counts as active; the fact is recomputed on every call.
func (s Subscriber) Active(now time.Time) bool {
	end, err := ParseExpiresOn(s.ExpiresOn)
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return !today.After(end)
}

// ExpirationStatus is the check-expiration read model.
type ExpirationStatus struct {
	Subscriber    Subscriber `json:"subscriber"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Expired       bool       `json:"expired"`
	DaysRemaining int        `json:"days_remaining"`
}

// CheckExpiration computes the expiration facts for a subscriber at now.
func CheckExpiration(s Subscriber, now time.Time) (ExpirationStatus, error) {
	end, err := ParseExpiresOn(s.ExpiresOn)
	if err != nil {
		return ExpirationStatus{}, err
	}
	expired := !s.Active(now)
	days := 0
	if !expired {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		days = int(end.Sub(today).Hours() / 24)
	}
	return ExpirationStatus{
		Subscriber:    s,
		ExpiresAt:     end,
		Expired:       expired,
		DaysRemaining: days,
	}, nil
}

// Directory provides subscriber lookups and registration updates.
type Directory interface {
	Find(identifier string) (Subscriber, error)
	List() ([]Subscriber, error)
	Put(sub Subscriber) error
	SetExpiration(identifier, expiresOn string) (Subscriber, error)
}

// IsActive is the derived eligibility fact for one identifier. Unknown
// subscribers are inactive.
func IsActive(d Directory, identifier string, now time.Time) bool {
	sub, err := d.Find(identifier)
	if err != nil {
		return false
	}
	return sub.Active(now)
}
