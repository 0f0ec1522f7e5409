package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()

	codec, err := NewCodec(Config{
		Secret: "test-secret",
		TTL:    ttl,
	})
	require.NoError(t, err)

	return codec
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec(Config{})
	require.Error(t, err)
}

func TestMintVerifyRoundTrip(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	minted, err := codec.Mint("U1", 42, "access-token", "林小姐")
	require.NoError(t, err)

	claims, err := codec.Verify(minted)
	require.NoError(t, err)

	assert.Equal(t, "U1", claims.UserId)
	assert.Equal(t, int64(42), claims.MemberId)
	assert.Equal(t, "access-token", claims.AccessToken)
	assert.Equal(t, "林小姐", claims.MemberName)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestVerifyExpiredToken(t *testing.T) {
	codec := newTestCodec(t, time.Millisecond)

	minted, err := codec.Mint("U1", 42, "access-token", "林小姐")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = codec.Verify(minted)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTamperedToken(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	minted, err := codec.Mint("U1", 42, "access-token", "林小姐")
	require.NoError(t, err)

	_, err = codec.Verify(minted + "x")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	minted, err := newTestCodec(t, time.Hour).Mint("U1", 42, "access-token", "林小姐")
	require.NoError(t, err)

	other, err := NewCodec(Config{Secret: "other-secret"})
	require.NoError(t, err)

	_, err = other.Verify(minted)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyForSubjectMismatch(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	minted, err := codec.Mint("U1", 42, "access-token", "林小姐")
	require.NoError(t, err)

	_, err = codec.VerifyFor(minted, "U2")
	require.ErrorIs(t, err, ErrInvalidToken)

	claims, err := codec.VerifyFor(minted, "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1", claims.UserId)
}

func TestRefreshKeepsClaims(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	minted, err := codec.Mint("U1", 42, "access-token", "林小姐")
	require.NoError(t, err)

	refreshed, err := codec.Refresh(minted)
	require.NoError(t, err)

	claims, err := codec.Verify(refreshed)
	require.NoError(t, err)

	assert.Equal(t, "U1", claims.UserId)
	assert.Equal(t, int64(42), claims.MemberId)
	assert.Equal(t, "access-token", claims.AccessToken)
	assert.Equal(t, "林小姐", claims.MemberName)
}

func TestRefreshInvalidToken(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	_, err := codec.Refresh("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
