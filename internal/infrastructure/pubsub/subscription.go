package pubsub

import (
	"net/url"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/tdex-network/xbridge/internal/core/ports"
)

// Subscription is a webhook: the messages of its topic are POSTed to its
// endpoint, signed with its secret if any.
type Subscription struct {
	ID       string
	Event    string
	Endpoint string
	Secret   string
}

// NewSubscription validates the endpoint, it must be an absolute http(s) URL,
// and assigns a random id to the new subscription.
func NewSubscription(topic, endpoint, secret string) (*Subscription, error) {
	if topic == ports.UnspecifiedTopic {
		return nil, ErrInvalidTopic
	}
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidEndpoint
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidEndpoint
	}

	return &Subscription{
		ID:       uuid.NewString(),
		Event:    topic,
		Endpoint: endpoint,
		Secret:   secret,
	}, nil
}

func (s *Subscription) Topic() string    { return s.Event }
func (s *Subscription) Id() string       { return s.ID }
func (s *Subscription) NotifyAt() string { return s.Endpoint }
func (s *Subscription) IsSecured() bool  { return s.Secret != "" }

// token returns an HS256 JWT for the subscription id, valid for tokenTTL
// from now.
func (s *Subscription) token(now time.Time) (string, error) {
	claims := jwt.StandardClaims{
		Subject:   s.ID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.Secret))
}

type subscriptions []Subscription

func (s subscriptions) toPortable() []ports.Subscription {
	subs := make([]ports.Subscription, 0, len(s))
	for i := range s {
		subs = append(subs, &s[i])
	}
	return subs
}
