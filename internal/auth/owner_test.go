package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/artwall/internal/model"
)

func TestNewOwnerToken_Unique(t *testing.T) {
	a, err := NewOwnerToken()
	require.NoError(t, err)
	b, err := NewOwnerToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43) // 32 bytes, unpadded base64
}

func TestHashOwnerToken(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashOwnerToken("abc"))
}

func TestVerifyOwner(t *testing.T) {
	token := "owner-token-value"
	hashed := &model.Artwork{OwnerTokenHash: HashOwnerToken(token)}
	upper := &model.Artwork{OwnerTokenHash: "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"}
	legacy := &model.Artwork{OwnerToken: token}
	none := &model.Artwork{}

	assert.True(t, VerifyOwner(hashed, token))
	assert.True(t, VerifyOwner(hashed, " "+token+" "))
	assert.False(t, VerifyOwner(hashed, "wrong"))
	assert.False(t, VerifyOwner(hashed, ""))
	assert.True(t, VerifyOwner(upper, "abc"))
	assert.True(t, VerifyOwner(legacy, token))
	assert.False(t, VerifyOwner(legacy, "wrong"))
	assert.False(t, VerifyOwner(none, token))
}
