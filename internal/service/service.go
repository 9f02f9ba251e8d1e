// Package service contains the business rules of the art wall: submitting
// and managing artworks, the like toggle, and leaderboard reads and
// maintenance. Handlers and the admin CLI both call into it; it knows
// nothing about HTTP.
package service

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/artwall/internal/kv"
	"github.com/sakif/artwall/internal/period"
)

const (
	MaxTitleLength  = 100
	MaxHandleLength = 64
	MaxPostURLLen   = 500

	DefaultGalleryLimit = 24
	MaxGalleryLimit     = 100

	DefaultBoardLimit = 10
	MaxBoardLimit     = 100

	MaxStatusIDs = 100
)

// textPolicy strips every tag; titles and handles are plain text.
var textPolicy = bluemonday.StrictPolicy()

// cleanText removes markup from user input. The policy escapes entities,
// which are turned back into plain characters because clients escape on
// render.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(strings.TrimSpace(s))))
}

// boardKeys returns the board key for every scope an event at t belongs to.
// A zero t (legacy data with no timestamp) only maps to the all-time board.
func boardKeys(calc *period.Calculator, entity kv.Entity, t time.Time) []string {
	keys, err := calc.Keys(t)
	if err != nil {
		return []string{kv.BoardKey(entity, string(period.AllTime), period.AllTimeKey)}
	}
	out := make([]string, 0, len(keys))
	for _, scope := range period.Scopes() {
		out = append(out, kv.BoardKey(entity, string(scope), keys[scope]))
	}
	return out
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
