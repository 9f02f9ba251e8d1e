package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCreator(t *testing.T) {
	tests := []struct {
		name string
		art  Artwork
		want string
	}{
		{"x wins over discord", Artwork{X: "@Mira", Discord: "mira#1"}, "mira"},
		{"discord fallback", Artwork{Discord: " Kaz "}, "kaz"},
		{"anonymous", Artwork{X: "@ "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.art.Creator())
		})
	}
}

func TestToPublic_DropsCredentials(t *testing.T) {
	a := Artwork{
		ID:             "a1",
		Title:          "Dusk",
		ImageURL:       "https://cdn/a1.png",
		CreatedAt:      time.Unix(1760184000, 0),
		OwnerTokenHash: "deadbeef",
		OwnerToken:     "legacy",
	}
	p := a.ToPublic(3)
	assert.Equal(t, "a1", p.ID)
	assert.EqualValues(t, 3, p.Likes)
	assert.Equal(t, a.CreatedAt, p.CreatedAt)
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	title := "x"
	assert.False(t, Patch{Title: &title}.Empty())
}
