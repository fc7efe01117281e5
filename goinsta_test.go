package instactl

import (
	"context"
	"errors"
	"testing"

	goinstav2 "github.com/ahmdrz/goinsta/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyRemoteMedia(t *testing.T) {
	rm := legacyRemoteMedia(goinstav2.Item{ID: "123_456", Code: "AbC", MediaType: 1, TakenAt: 1700000000}, "hi")
	assert.Equal(t, "123_456", rm.ID)
	assert.Equal(t, "https://www.instagram.com/p/AbC/", rm.Permalink)
	assert.Equal(t, "hi", rm.Caption)
	assert.Equal(t, int64(1700000000), rm.TakenAt)

	assert.Empty(t, legacyRemoteMedia(goinstav2.Item{ID: "1"}, "").Permalink)
}

func TestNewClient(t *testing.T) {
	cfg := DefaultConfig()

	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &GoinstaClient{}, c)
	assert.True(t, supports(c, CapVideoUpload))
	assert.True(t, supports(c, CapTwoFactor))

	cfg.Backend = BackendGoinstaV2
	c, err = NewClient(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LegacyClient{}, c)
	assert.False(t, supports(c, CapVideoUpload))
	assert.False(t, supports(c, CapReelUpload))
	assert.False(t, supports(c, CapTwoFactor))

	cfg.Backend = "selenium"
	_, err = NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestGoinstaClient_NeedsSession(t *testing.T) {
	c := NewGoinstaClient("", nil)
	ctx := context.Background()

	_, err := c.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.ErrorIs(t, c.Validate(ctx), ErrSessionInvalid)
	_, err = c.LookupUser(ctx, "someone")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = c.UploadVideo(ctx, "a.mp4", "", "")
	assert.ErrorIs(t, err, ErrSessionInvalid, "video upload is a real call that needs a session")
	assert.NotErrorIs(t, err, ErrUnsupported)

	err = c.Follow(ctx, 42)
	assert.True(t, isNotFound(err), "follow needs a looked-up user")

	err = c.TwoFactorLogin(ctx, "123456")
	var ae *AuthError
	assert.True(t, errors.As(err, &ae))
	assert.Contains(t, err.Error(), "no pending two-factor challenge")
}

func TestLegacyClient_Unsupported(t *testing.T) {
	c := NewLegacyClient("", nil)
	ctx := context.Background()

	_, err := c.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = c.UploadVideo(ctx, "a.mp4", "", "")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = c.UploadReel(ctx, "a.mp4", "", "")
	assert.ErrorIs(t, err, ErrUnsupported)

	err = c.TwoFactorLogin(ctx, "123456")
	assert.Contains(t, err.Error(), "no pending two-factor challenge")
}
