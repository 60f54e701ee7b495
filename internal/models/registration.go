// Package models - Public registration and short link types.
//
// Validation Philosophy:
// - Normalize first (trim, lower-case emails) so duplicates are detected
// - Validate returns every field error at once for a single round trip
package models

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

// Registration is a public sign-up for an event.
type Registration struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role,omitempty"`
	ClientIP  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationRequest is the body of POST /api/v1/public/events/{event_id}/register.
type RegistrationRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Normalize trims every field and lower-cases the email.
func (r *RegistrationRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Role = strings.TrimSpace(r.Role)
}

// Validate returns field errors keyed by JSON field name, or nil.
func (r *RegistrationRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.Name == "" {
		errs["name"] = "name is required"
	} else if len(r.Name) > 200 {
		errs["name"] = "name must be at most 200 characters"
	}
	if r.Email == "" {
		errs["email"] = "email is required"
	} else if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		errs["email"] = "email is not a valid address"
	}
	if len(r.Phone) > 40 {
		errs["phone"] = "phone must be at most 40 characters"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ToRegistration builds a Registration for eventID.
func (r *RegistrationRequest) ToRegistration(eventID, clientIP string) *Registration {
	return &Registration{
		ID:        NewID(),
		EventID:   eventID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Role:      r.Role,
		ClientIP:  clientIP,
		CreatedAt: time.Now().UTC(),
	}
}

// ShortLink maps a short key to a target URL.
type ShortLink struct {
	Key       string     `json:"key"`
	TargetURL string     `json:"target_url"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the link has an expiry at or before now.
func (s *ShortLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// CreateShortLinkRequest is the body of POST /api/v1/short-links.
type CreateShortLinkRequest struct {
	TargetURL string `json:"target_url"`
	// TTLSeconds sets an optional expiry. Zero means never.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// MaxShortLinkTTL bounds CreateShortLinkRequest.TTLSeconds.
const MaxShortLinkTTL = 365 * 24 * time.Hour

func (r *CreateShortLinkRequest) Validate() map[string]string {
	errs := make(map[string]string)
	r.TargetURL = strings.TrimSpace(r.TargetURL)
	if r.TargetURL == "" {
		errs["target_url"] = "target_url is required"
	} else if u, err := url.Parse(r.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs["target_url"] = "target_url must be an absolute http or https URL"
	}
	if r.TTLSeconds < 0 {
		errs["ttl_seconds"] = "ttl_seconds cannot be negative"
	} else if time.Duration(r.TTLSeconds)*time.Second > MaxShortLinkTTL {
		errs["ttl_seconds"] = fmt.Sprintf("ttl_seconds must be at most %d", int(MaxShortLinkTTL.Seconds()))
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ShortLinkResponse is returned after a short link is created.
type ShortLinkResponse struct {
	ShortLink
	ShortURL string `json:"short_url"`
}
