package instactl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/multierr"
)

// Instagram carousels hold between 2 and 10 items.
const (
	MinAlbumItems = 2
	MaxAlbumItems = 10
)

type mediaKind int

const (
	kindImage mediaKind = iota
	kindVideo
	kindImageOrVideo
)

func (k mediaKind) String() string {
	switch k {
	case kindImage:
		return "an image"
	case kindVideo:
		return "a video"
	default:
		return "an image or video"
	}
}

func (k mediaKind) accepts(mime string) bool {
	switch k {
	case kindImage:
		return strings.HasPrefix(mime, "image/")
	case kindVideo:
		return strings.HasPrefix(mime, "video/")
	default:
		return strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "video/")
	}
}

// validateMedia checks that path exists, is a non-empty regular file and that
// its content sniffs as the wanted kind. It returns the absolute path.
func validateMedia(path string, want mediaKind) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &MediaError{Path: path, Reason: "no file given"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &MediaError{Path: path, Reason: "bad path", Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &MediaError{Path: path, Reason: "file not found", Err: err}
		}
		return "", &MediaError{Path: path, Reason: "cannot stat", Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", &MediaError{Path: path, Reason: "not a regular file"}
	}
	if info.Size() == 0 {
		return "", &MediaError{Path: path, Reason: "file is empty"}
	}

	mtype, err := mimetype.DetectFile(abs)
	if err != nil {
		return "", &MediaError{Path: path, Reason: "cannot read", Err: err}
	}
	if !want.accepts(mtype.String()) {
		return "", &MediaError{Path: path, Reason: fmt.Sprintf("content is %s, want %s", mtype.String(), want)}
	}
	return abs, nil
}

// validateAlbum checks every item and reports all bad files at once.
func validateAlbum(paths []string) ([]string, error) {
	if len(paths) < MinAlbumItems || len(paths) > MaxAlbumItems {
		return nil, &MediaError{
			Path:   strings.Join(paths, ","),
			Reason: fmt.Sprintf("album needs %d to %d files, got %d", MinAlbumItems, MaxAlbumItems, len(paths)),
		}
	}

	var (
		out  = make([]string, 0, len(paths))
		errs error
	)
	for _, p := range paths {
		abs, err := validateMedia(p, kindImageOrVideo)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, abs)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}
