package ratelimit

import (
	"net/http"

	"eventhub/internal/models"
)

// Policy names, used as metric and log labels.
const (
	PolicyPublicRegistration = "public_registration"
	PolicyShortLinkCreation  = "short_link_creation"
)

// AnonymousActor is the user component of short-link keys for
// unauthenticated callers.
const AnonymousActor = "anon"

// RegistrationRules supplies the live public-registration limits.
type RegistrationRules interface {
	RegistrationPerIP() Rule
	RegistrationPerEmail() Rule
}

// ShortLinkRules supplies the live short-link creation limits.
type ShortLinkRules interface {
	ShortLinkPerUser() Rule
	ShortLinkPerIP() Rule
}

// PublicRegistration limits public event sign-ups per client IP, then per
// email address when the body carries one.
func PublicRegistration(consumer Consumer, rules RegistrationRules, sink Sink, bypass func() bool) *Policy {
	return &Policy{
		Name:     PolicyPublicRegistration,
		Consumer: consumer,
		Sink:     sink,
		Bypass:   bypass,
		Checks: []Check{
			{
				Name:    "ip",
				Code:    models.ErrorCodeRateLimitIP,
				Message: "Too many registration attempts from this IP. Please try again later.",
				Rule:    rules.RegistrationPerIP,
				Key: func(r *http.Request) (string, bool) {
					return "pubreg:ip:" + ClientIP(r), true
				},
			},
			{
				Name:    "email",
				Code:    models.ErrorCodeRateLimitEmail,
				Message: "Too many registration attempts for this email. Please try again later.",
				Rule:    rules.RegistrationPerEmail,
				Key: func(r *http.Request) (string, bool) {
					email := EmailFromBody(r)
					if email == "" {
						return "", false
					}
					return "pubreg:email:" + email, true
				},
			},
		},
	}
}

// ShortLinkCreation limits short-link creation per acting user, then per
// client IP. actor returns the authenticated user ID or "" for anonymous
// callers.
func ShortLinkCreation(consumer Consumer, rules ShortLinkRules, actor func(*http.Request) string, sink Sink, bypass func() bool) *Policy {
	return &Policy{
		Name:     PolicyShortLinkCreation,
		Consumer: consumer,
		Sink:     sink,
		Bypass:   bypass,
		Checks: []Check{
			{
				Name:    "user",
				Code:    models.ErrorCodeRateLimitUser,
				Message: "Too many short links created. Please try again later.",
				Rule:    rules.ShortLinkPerUser,
				Key: func(r *http.Request) (string, bool) {
					id := ""
					if actor != nil {
						id = actor(r)
					}
					if id == "" {
						id = AnonymousActor
					}
					return "slcreate:user:" + id, true
				},
			},
			{
				Name:    "ip",
				Code:    models.ErrorCodeRateLimitIP,
				Message: "Too many short link requests from this IP. Please try again later.",
				Rule:    rules.ShortLinkPerIP,
				Key: func(r *http.Request) (string, bool) {
					return "slcreate:ip:" + ClientIP(r), true
				},
			},
		},
	}
}
