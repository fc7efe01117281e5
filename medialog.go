package instactl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// MediaType is the kind of post recorded in the media log.
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
	MediaReel  MediaType = "reel"
	MediaAlbum MediaType = "album"
)

// PostedMedia is one entry of posted_media.json.
type PostedMedia struct {
	ID            string    `json:"id"`
	MediaType     MediaType `json:"media_type"`
	FilePaths     []string  `json:"file_paths"`
	Caption       string    `json:"caption"`
	Timestamp     time.Time `json:"timestamp"`
	RemoteMediaID string    `json:"remote_media_id"`
	MediaCode     string    `json:"media_code,omitempty"`
	Permalink     string    `json:"permalink,omitempty"`
}

// MediaLog is the append-only record of successful posts. Existing entries
// are never rewritten or reordered; a log that fails to parse is left alone
// and reported.
type MediaLog struct {
	path string
}

// NewMediaLog opens the log at path lazily; the file is created on first Append.
func NewMediaLog(path string) *MediaLog {
	return &MediaLog{path: path}
}

// Path is the log file location.
func (l *MediaLog) Path() string { return l.path }

// Records returns the log in insertion order.
func (l *MediaLog) Records() ([]PostedMedia, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records []PostedMedia
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	return records, nil
}

// Append adds rec at the end of the log, minting an ID when rec has none.
func (l *MediaLog) Append(rec PostedMedia) (PostedMedia, error) {
	records, err := l.Records()
	if err != nil {
		return rec, fmt.Errorf("media log not appended: %w", err)
	}

	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return rec, err
	}
	if err := writeFileAtomic(l.path, append(data, '\n'), 0o644); err != nil {
		return rec, fmt.Errorf("write %s: %w", l.path, err)
	}
	return rec, nil
}
