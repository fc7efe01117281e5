package instactl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	goinstav2 "github.com/ahmdrz/goinsta/v2"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	uploadQuality = 87
	uploadFilter  = 0
)

// LegacyClient implements Client on goinsta v2, the library the earlier
// instabot sessions were exported with. Select it with backend "goinsta-v2".
// It cannot upload videos or reels and cannot answer a two-factor challenge.
type LegacyClient struct {
	proxy string
	log   *zap.SugaredLogger

	insta   *goinstav2.Instagram
	pending *goinstav2.Instagram
	users   map[int64]*goinstav2.User
}

// NewLegacyClient returns a v2 client that routes through proxy when set.
func NewLegacyClient(proxy string, logger *zap.SugaredLogger) *LegacyClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LegacyClient{
		proxy: proxy,
		log:   logger,
		users: make(map[int64]*goinstav2.User),
	}
}

// Supports reports the operations goinsta v2 has no call for.
func (c *LegacyClient) Supports(capability Capability) bool {
	switch capability {
	case CapVideoUpload, CapReelUpload, CapTwoFactor:
		return false
	}
	return true
}

func (c *LegacyClient) configure(inst *goinstav2.Instagram) error {
	if c.proxy == "" {
		return nil
	}
	if err := inst.SetProxy(c.proxy, false); err != nil {
		return fmt.Errorf("set proxy: %w", err)
	}
	c.log.Info("Proxy configured")
	return nil
}

func (c *LegacyClient) session() (*goinstav2.Instagram, error) {
	if c.insta == nil {
		return nil, &AuthError{Op: "session", Err: ErrSessionInvalid}
	}
	return c.insta, nil
}

func (c *LegacyClient) Restore(ctx context.Context, blob []byte) error {
	inst, err := goinstav2.ImportReader(bytes.NewReader(blob))
	if err != nil {
		if err := classify("restore", opRead, err); IsTransient(err) {
			return err
		}
		return &AuthError{Op: "restore", Err: fmt.Errorf("%w: %v", ErrSessionInvalid, err)}
	}
	if err := c.configure(inst); err != nil {
		return err
	}
	c.insta = inst
	return nil
}

func (c *LegacyClient) Snapshot(ctx context.Context) ([]byte, error) {
	inst, err := c.session()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goinstav2.Export(inst, &buf); err != nil {
		return nil, fmt.Errorf("export session: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *LegacyClient) Login(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inst := goinstav2.New(username, password)
	if err := c.configure(inst); err != nil {
		return err
	}
	if err := inst.Login(); err != nil {
		err = classify("login", opAuth, err)
		if errors.Is(err, ErrTwoFactorRequired) {
			c.pending = inst
		}
		return err
	}
	c.insta, c.pending = inst, nil
	return nil
}

func (c *LegacyClient) TwoFactorLogin(ctx context.Context, code string) error {
	if c.pending == nil {
		return &AuthError{Op: "two-factor", Err: errors.New("no pending two-factor challenge")}
	}
	return &AuthError{Op: "two-factor", Err: fmt.Errorf("goinsta-v2 backend cannot submit a one-time code: %w", ErrUnsupported)}
}

func (c *LegacyClient) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inst, err := c.session()
	if err != nil {
		return err
	}
	if inst.Account == nil {
		return &AuthError{Op: "validate", Err: ErrSessionInvalid}
	}
	return classify("validate", opAuth, inst.Account.Sync())
}

func (c *LegacyClient) Logout(ctx context.Context) error {
	inst, err := c.session()
	if err != nil {
		return err
	}
	c.insta = nil
	return classify("logout", opRead, inst.Logout())
}

func (c *LegacyClient) UploadPhoto(ctx context.Context, path, caption string) (RemoteMedia, error) {
	if err := ctx.Err(); err != nil {
		return RemoteMedia{}, err
	}
	inst, err := c.session()
	if err != nil {
		return RemoteMedia{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return RemoteMedia{}, &MediaError{Path: path, Reason: "cannot open", Err: err}
	}
	defer f.Close()

	item, err := inst.UploadPhoto(f, caption, uploadQuality, uploadFilter)
	if err != nil {
		return RemoteMedia{}, classify("photo upload", opWrite, err)
	}
	return legacyRemoteMedia(item, caption), nil
}

func (c *LegacyClient) UploadVideo(ctx context.Context, path, caption, thumbnail string) (RemoteMedia, error) {
	return RemoteMedia{}, &UploadError{Op: "video upload", Err: fmt.Errorf("goinsta-v2 backend: %w", ErrUnsupported)}
}

func (c *LegacyClient) UploadReel(ctx context.Context, path, caption, thumbnail string) (RemoteMedia, error) {
	return RemoteMedia{}, &UploadError{Op: "reel upload", Err: fmt.Errorf("goinsta-v2 backend: %w", ErrUnsupported)}
}

// UploadAlbum sends a photo carousel. goinsta v2 only builds carousels from images.
func (c *LegacyClient) UploadAlbum(ctx context.Context, paths []string, caption string) (RemoteMedia, error) {
	if err := ctx.Err(); err != nil {
		return RemoteMedia{}, err
	}
	inst, err := c.session()
	if err != nil {
		return RemoteMedia{}, err
	}

	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		mtype, err := mimetype.DetectFile(p)
		if err != nil {
			return RemoteMedia{}, &MediaError{Path: p, Reason: "cannot read", Err: err}
		}
		if !strings.HasPrefix(mtype.String(), "image/") {
			return RemoteMedia{}, &UploadError{Op: "album upload", Err: fmt.Errorf("%s is %s, only images: %w", p, mtype.String(), ErrUnsupported)}
		}
		f, err := os.Open(p)
		if err != nil {
			return RemoteMedia{}, &MediaError{Path: p, Reason: "cannot open", Err: err}
		}
		defer f.Close()
		readers = append(readers, f)
	}

	item, err := inst.UploadAlbum(readers, caption, uploadQuality, uploadFilter)
	if err != nil {
		return RemoteMedia{}, classify("album upload", opWrite, err)
	}
	return legacyRemoteMedia(item, caption), nil
}

func (c *LegacyClient) LookupUser(ctx context.Context, username string) (RemoteUser, error) {
	if err := ctx.Err(); err != nil {
		return RemoteUser{}, err
	}
	inst, err := c.session()
	if err != nil {
		return RemoteUser{}, err
	}
	user, err := inst.Profiles.ByName(username)
	if err != nil {
		err = classify("lookup", opRead, err)
		if isNotFound(err) {
			return RemoteUser{}, &NotFoundError{Name: username, Err: err}
		}
		return RemoteUser{}, err
	}
	if user == nil || user.ID == 0 {
		return RemoteUser{}, &NotFoundError{Name: username}
	}
	c.users[user.ID] = user
	return RemoteUser{ID: user.ID, Username: user.Username, FullName: user.FullName}, nil
}

func (c *LegacyClient) cachedUser(id int64) (*goinstav2.User, error) {
	user, ok := c.users[id]
	if !ok {
		return nil, &NotFoundError{Kind: "user id", Name: fmt.Sprint(id)}
	}
	return user, nil
}

func (c *LegacyClient) Follow(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user, err := c.cachedUser(userID)
	if err != nil {
		return err
	}
	return classify("follow", opWrite, user.Follow())
}

func (c *LegacyClient) Unfollow(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user, err := c.cachedUser(userID)
	if err != nil {
		return err
	}
	return classify("unfollow", opWrite, user.Unfollow())
}

func (c *LegacyClient) Account(ctx context.Context) (AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return AccountInfo{}, err
	}
	inst, err := c.session()
	if err != nil {
		return AccountInfo{}, err
	}
	if inst.Account == nil {
		return AccountInfo{}, &AuthError{Op: "account", Err: ErrSessionInvalid}
	}
	if err := inst.Account.Sync(); err != nil {
		return AccountInfo{}, classify("account", opRead, err)
	}
	acc := inst.Account
	return AccountInfo{
		ID:         acc.ID,
		Username:   acc.Username,
		FullName:   acc.FullName,
		Followers:  acc.FollowerCount,
		Following:  acc.FollowingCount,
		MediaCount: acc.MediaCount,
	}, nil
}

func (c *LegacyClient) media(mediaID string) (*goinstav2.Item, error) {
	inst, err := c.session()
	if err != nil {
		return nil, err
	}
	feed, err := inst.GetMedia(mediaID)
	if err != nil {
		err = classify("media", opRead, err)
		if isNotFound(err) {
			return nil, &NotFoundError{Kind: "media", Name: mediaID, Err: err}
		}
		return nil, err
	}
	if feed == nil || len(feed.Items) == 0 {
		return nil, &NotFoundError{Kind: "media", Name: mediaID}
	}
	return &feed.Items[0], nil
}

func (c *LegacyClient) Like(ctx context.Context, mediaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item, err := c.media(mediaID)
	if err != nil {
		return err
	}
	if item.HasLiked {
		c.log.Infow("Media already liked", "media", mediaID)
		return nil
	}
	return classify("like", opWrite, item.Like())
}

func (c *LegacyClient) Comment(ctx context.Context, mediaID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item, err := c.media(mediaID)
	if err != nil {
		return err
	}
	if item.Comments == nil {
		return &UploadError{Op: "comment", Err: fmt.Errorf("media %s returned no comment thread", mediaID)}
	}
	return classify("comment", opWrite, item.Comments.Add(text))
}

// UserMedia pages through the user's feed. goinsta v2 answers a fresh feed's
// first page even when it is empty, so a false first Next is a failed request.
func (c *LegacyClient) UserMedia(ctx context.Context, userID int64, amount int) ([]RemoteMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := c.cachedUser(userID)
	if err != nil {
		return nil, err
	}

	var out []RemoteMedia
	feed := user.Feed()
	for page := 0; len(out) < amount; page++ {
		if !feed.Next() {
			if page == 0 {
				c.log.Warnw("User feed request failed", "user", user.Username)
				return nil, &TransientError{Op: "user media", Err: errors.New("feed request failed")}
			}
			break
		}
		for _, item := range feed.Items {
			if len(out) == amount {
				break
			}
			out = append(out, legacyRemoteMedia(item, ""))
		}
	}
	return out, nil
}

func legacyRemoteMedia(item goinstav2.Item, caption string) RemoteMedia {
	return newRemoteMedia(item.ID, item.Code, item.MediaType, item.TakenAt, caption)
}

var _ Client = (*LegacyClient)(nil)
