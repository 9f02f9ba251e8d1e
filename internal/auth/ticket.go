// Package auth holds the three credentials the service understands:
//
//   - owner tokens: random capability tokens handed to the uploader once;
//     only their SHA-256 is stored
//   - upload tickets: short-lived JWTs authorising one direct image upload
//   - the admin key: a single injected secret for maintenance routes
//
// There are no user accounts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ticketIssuer = "artwall-upload"

	// DefaultTicketTTL bounds how long a client may take between asking for
	// an upload slot and submitting the artwork.
	DefaultTicketTTL = 15 * time.Minute
)

var ErrTicketExpired = errors.New("auth: upload ticket expired")

// TicketService signs and verifies direct-upload tickets (HS256 JWTs whose
// subject is the reserved artwork id).
type TicketService struct {
	secret []byte
	ttl    time.Duration
}

// NewTicketService rejects secrets shorter than 16 characters.
func NewTicketService(secret string, ttl time.Duration) (*TicketService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: upload ticket secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketService{secret: []byte(secret), ttl: ttl}, nil
}

type ticketClaims struct {
	Ext string `json:"ext"`
	jwt.RegisteredClaims
}

// Ticket is the decoded content of a valid ticket.
type Ticket struct {
	ArtworkID string
	Ext       string // image extension the slot was reserved for, may be empty
	ExpiresAt time.Time
}

// Issue signs a ticket for artworkID.
func (s *TicketService) Issue(artworkID, ext string) (string, time.Time, error) {
	return s.issueAt(artworkID, ext, time.Now(), s.ttl)
}

func (s *TicketService) issueAt(artworkID, ext string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	c := ticketClaims{
		Ext: ext,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   artworkID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    ticketIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing ticket: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies signature, issuer and expiry. Only HS256 is accepted,
// which rules out "alg: none" tokens.
func (s *TicketService) Validate(ticket string) (*Ticket, error) {
	token, err := jwt.ParseWithClaims(
		ticket,
		&ticketClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(ticketIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTicketExpired
		}
		return nil, fmt.Errorf("auth: invalid upload ticket: %w", err)
	}

	c, ok := token.Claims.(*ticketClaims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, errors.New("auth: invalid upload ticket claims")
	}

	return &Ticket{ArtworkID: c.Subject, Ext: c.Ext, ExpiresAt: c.ExpiresAt.Time}, nil
}
