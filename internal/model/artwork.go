// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Artwork is the metadata document stored next to each uploaded image.
//
// The JSON shape is the persisted format (meta/<id>.json), so field names
// must stay stable. OwnerToken only exists on records written before tokens
// were hashed; it is read for verification and never written again.
type Artwork struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	X              string    `json:"x,omitempty"`
	Discord        string    `json:"discord,omitempty"`
	ImageURL       string    `json:"imageUrl"`
	ImageKey       string    `json:"imageKey,omitempty"`
	ThumbURL       string    `json:"thumbUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	OwnerTokenHash string    `json:"ownerTokenHash,omitempty"`
	OwnerToken     string    `json:"ownerToken,omitempty"`
	PostURL        string    `json:"postUrl,omitempty"`
}

// Creator returns the normalised handle the artwork is ranked under: the X
// handle when present, otherwise the Discord handle. Empty means anonymous.
func (a *Artwork) Creator() string {
	if h := NormalizeHandle(a.X); h != "" {
		return h
	}
	return NormalizeHandle(a.Discord)
}

// NormalizeHandle lowercases a handle and strips a leading "@".
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(strings.TrimSpace(h))
}

// Public is the view of an artwork returned by the API: no credentials.
type Public struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	X         string    `json:"x,omitempty"`
	Discord   string    `json:"discord,omitempty"`
	ImageURL  string    `json:"imageUrl"`
	ThumbURL  string    `json:"thumbUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	PostURL   string    `json:"postUrl,omitempty"`
	Likes     int64     `json:"likes"`
}

// ToPublic strips the credential fields.
func (a *Artwork) ToPublic(likes int64) Public {
	return Public{
		ID:        a.ID,
		Title:     a.Title,
		X:         a.X,
		Discord:   a.Discord,
		ImageURL:  a.ImageURL,
		ThumbURL:  a.ThumbURL,
		CreatedAt: a.CreatedAt,
		PostURL:   a.PostURL,
		Likes:     likes,
	}
}

// Patch is the allow-listed set of fields an owner may change. Nil means
// "leave unchanged"; an empty string clears an optional field.
type Patch struct {
	Title   *string `json:"title"`
	X       *string `json:"x"`
	Discord *string `json:"discord"`
	PostURL *string `json:"postUrl"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.X == nil && p.Discord == nil && p.PostURL == nil
}
