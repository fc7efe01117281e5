package instactl

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const permalinkBase = "https://www.instagram.com/p/"

// AccountInfo is the read-only account summary shown by the info command.
type AccountInfo struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Followers  int    `json:"followers"`
	Following  int    `json:"following"`
	MediaCount int    `json:"media_count"`
}

// RemoteUser is a resolved profile.
type RemoteUser struct {
	ID       int64
	Username string
	FullName string
}

// RemoteMedia describes a media item as the remote side knows it.
type RemoteMedia struct {
	ID        string
	Code      string
	MediaType int
	Caption   string
	Permalink string
	TakenAt   int64
}

// Client is the remote account capability. Implementations classify their
// failures into AuthError, UploadError, NotFoundError and TransientError, and
// report a dead session with ErrSessionInvalid.
type Client interface {
	// Restore loads a blob previously produced by Snapshot.
	Restore(ctx context.Context, blob []byte) error
	// Snapshot serializes the current session.
	Snapshot(ctx context.Context) ([]byte, error)
	// Login performs credential login. It returns ErrTwoFactorRequired when
	// the account needs a one-time code, which is then sent with TwoFactorLogin.
	Login(ctx context.Context, username, password string) error
	TwoFactorLogin(ctx context.Context, code string) error
	// Validate asks the remote side whether the restored session still works.
	Validate(ctx context.Context) error
	Logout(ctx context.Context) error

	UploadPhoto(ctx context.Context, path, caption string) (RemoteMedia, error)
	UploadVideo(ctx context.Context, path, caption, thumbnail string) (RemoteMedia, error)
	UploadReel(ctx context.Context, path, caption, thumbnail string) (RemoteMedia, error)
	UploadAlbum(ctx context.Context, paths []string, caption string) (RemoteMedia, error)

	LookupUser(ctx context.Context, username string) (RemoteUser, error)
	Follow(ctx context.Context, userID int64) error
	Unfollow(ctx context.Context, userID int64) error
	Account(ctx context.Context) (AccountInfo, error)

	Like(ctx context.Context, mediaID string) error
	Comment(ctx context.Context, mediaID, text string) error
	UserMedia(ctx context.Context, userID int64, amount int) ([]RemoteMedia, error)
}

func newRemoteMedia(id, code string, mediaType int, takenAt int64, caption string) RemoteMedia {
	rm := RemoteMedia{
		ID:        id,
		Code:      code,
		MediaType: mediaType,
		Caption:   caption,
		TakenAt:   takenAt,
	}
	if code != "" {
		rm.Permalink = permalinkBase + code + "/"
	}
	return rm
}

// Capability names an operation a Client may not offer.
type Capability string

const (
	CapVideoUpload Capability = "video upload"
	CapReelUpload  Capability = "reel upload"
	CapTwoFactor   Capability = "two-factor login"
)

// CapabilityReporter is implemented by clients that lack some operations.
// Clients that do not implement it are assumed to support everything.
type CapabilityReporter interface {
	Supports(Capability) bool
}

func supports(c Client, capability Capability) bool {
	if cr, ok := c.(CapabilityReporter); ok {
		return cr.Supports(capability)
	}
	return true
}

// Client backends selectable with the backend config key.
const (
	BackendGoinsta   = "goinsta"
	BackendGoinstaV2 = "goinsta-v2"
)

// NewClient builds the Client named by cfg.Backend.
func NewClient(cfg Config, logger *zap.SugaredLogger) (Client, error) {
	switch strings.TrimSpace(cfg.Backend) {
	case "", BackendGoinsta:
		return NewGoinstaClient(cfg.Proxy, logger), nil
	case BackendGoinstaV2:
		return NewLegacyClient(cfg.Proxy, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
