package instactl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}
	testMP4  = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}
)

func mediaFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestValidateMedia(t *testing.T) {
	dir := t.TempDir()
	jpg := mediaFile(t, dir, "a.jpg", append(testJPEG, make([]byte, 32)...))
	mp4 := mediaFile(t, dir, "a.mp4", append(testMP4, make([]byte, 32)...))
	txt := mediaFile(t, dir, "a.txt", []byte("hello there\n"))
	empty := mediaFile(t, dir, "empty.jpg", nil)

	tests := []struct {
		name    string
		path    string
		kind    mediaKind
		wantErr string
	}{
		{"jpeg as image", jpg, kindImage, ""},
		{"mp4 as video", mp4, kindVideo, ""},
		{"jpeg in album", jpg, kindImageOrVideo, ""},
		{"mp4 in album", mp4, kindImageOrVideo, ""},
		{"mp4 as image", mp4, kindImage, "want an image"},
		{"jpeg as video", jpg, kindVideo, "want a video"},
		{"text", txt, kindImageOrVideo, "content is text/plain"},
		{"empty", empty, kindImage, "file is empty"},
		{"missing", filepath.Join(dir, "nope.jpg"), kindImage, "file not found"},
		{"directory", dir, kindImage, "not a regular file"},
		{"blank", "  ", kindImage, "no file given"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, err := validateMedia(tt.path, tt.kind)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.True(t, filepath.IsAbs(abs))
				return
			}
			require.Error(t, err)
			var me *MediaError
			require.True(t, errors.As(err, &me))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMedia_MissingWrapsNotExist(t *testing.T) {
	_, err := validateMedia(filepath.Join(t.TempDir(), "gone.mp4"), kindVideo)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateAlbum(t *testing.T) {
	dir := t.TempDir()
	a := mediaFile(t, dir, "a.jpg", append(testJPEG, make([]byte, 32)...))
	b := mediaFile(t, dir, "b.mp4", append(testMP4, make([]byte, 32)...))

	got, err := validateAlbum([]string{a, b})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = validateAlbum([]string{a})
	assert.ErrorContains(t, err, "album needs 2 to 10 files")

	many := make([]string, MaxAlbumItems+1)
	for i := range many {
		many[i] = a
	}
	_, err = validateAlbum(many)
	assert.ErrorContains(t, err, "got 11")

	_, err = validateAlbum([]string{a, filepath.Join(dir, "x.jpg"), filepath.Join(dir, "y.jpg")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.jpg")
	assert.Contains(t, err.Error(), "y.jpg")
	assert.Equal(t, ExitMedia, ExitCode(err))
}
