package model

import "time"

// LeaderboardEntry is one ranked row. Artwork is set for art boards.
type LeaderboardEntry struct {
	Rank    int     `json:"rank"`
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Artwork *Public `json:"artwork,omitempty"`
}

// Leaderboard is the response for one board read.
type Leaderboard struct {
	Entity  string             `json:"entity"`
	Scope   string             `json:"scope"`
	Period  string             `json:"period"`
	Metric  string             `json:"metric,omitempty"`
	Entries []LeaderboardEntry `json:"entries"`
	// Degraded is set when the store could not be read and Entries is empty
	// for that reason rather than because nobody scored.
	Degraded bool `json:"degraded,omitempty"`
}

// Snapshot is an archived copy of a board taken before a reset.
type Snapshot struct {
	ID         string             `json:"id"`
	Entity     string             `json:"entity"`
	Scope      string             `json:"scope"`
	Period     string             `json:"period"`
	Entries    []LeaderboardEntry `json:"entries"`
	ArchivedAt time.Time          `json:"archivedAt"`
}

// LikeStatus is one artwork's like state for a voter.
type LikeStatus struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"count"`
}
