package instactl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Davincible/goinsta/v3"
	"go.uber.org/zap"
)

// GoinstaClient implements Client on goinsta v3, the maintained fork that
// uploads videos and answers two-factor challenges.
type GoinstaClient struct {
	proxy string
	log   *zap.SugaredLogger

	insta   *goinsta.Instagram
	pending *goinsta.Instagram
	users   map[int64]*goinsta.User
}

// NewGoinstaClient returns a client that routes through proxy when set.
func NewGoinstaClient(proxy string, logger *zap.SugaredLogger) *GoinstaClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GoinstaClient{
		proxy: proxy,
		log:   logger,
		users: make(map[int64]*goinsta.User),
	}
}

func (c *GoinstaClient) configure(inst *goinsta.Instagram) error {
	if c.proxy == "" {
		return nil
	}
	if err := inst.SetProxy(c.proxy, false, true); err != nil {
		return fmt.Errorf("set proxy: %w", err)
	}
	c.log.Info("Proxy configured")
	return nil
}

func (c *GoinstaClient) session() (*goinsta.Instagram, error) {
	if c.insta == nil {
		return nil, &AuthError{Op: "session", Err: ErrSessionInvalid}
	}
	return c.insta, nil
}

// Restore imports the blob without the app-open sync; Validate does the
// remote check when the caller asks for one.
func (c *GoinstaClient) Restore(ctx context.Context, blob []byte) error {
	inst, err := goinsta.ImportReader(bytes.NewReader(blob), true)
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

// Snapshot exports the live session.
func (c *GoinstaClient) Snapshot(ctx context.Context) ([]byte, error) {
	inst, err := c.session()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := inst.ExportIO(&buf); err != nil {
		return nil, fmt.Errorf("export session: %w", err)
	}
	return buf.Bytes(), nil
}

// Login starts a fresh device session. A two-factor challenge is kept
// pending for TwoFactorLogin.
func (c *GoinstaClient) Login(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inst := goinsta.New(username, password)
	if err := c.configure(inst); err != nil {
		return err
	}
	if err := inst.Login(); err != nil {
		if inst.TwoFactorInfo != nil {
			c.pending = inst
			return &AuthError{Op: "login", Err: fmt.Errorf("%w: %v", ErrTwoFactorRequired, err)}
		}
		return classify("login", opAuth, err)
	}
	c.insta, c.pending = inst, nil
	return nil
}

// TwoFactorLogin answers the challenge left by the last Login.
func (c *GoinstaClient) TwoFactorLogin(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.pending == nil || c.pending.TwoFactorInfo == nil {
		return &AuthError{Op: "two-factor", Err: errors.New("no pending two-factor challenge")}
	}
	if err := c.pending.TwoFactorInfo.Login2FA(code); err != nil {
		return classify("two-factor", opAuth, err)
	}
	c.insta, c.pending = c.pending, nil
	return nil
}

// Validate syncs the account, which fails when the session is dead.
func (c *GoinstaClient) Validate(ctx context.Context) error {
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

// Logout ends the remote session and forgets it locally.
func (c *GoinstaClient) Logout(ctx context.Context) error {
	inst, err := c.session()
	if err != nil {
		return err
	}
	c.insta = nil
	return classify("logout", opRead, inst.Logout())
}

// upload opens the files and hands them to goinsta's single upload call,
// which tells photos from videos by content.
func (c *GoinstaClient) upload(ctx context.Context, op string, paths []string, thumbnail, caption string) (RemoteMedia, error) {
	if err := ctx.Err(); err != nil {
		return RemoteMedia{}, err
	}
	inst, err := c.session()
	if err != nil {
		return RemoteMedia{}, err
	}

	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return RemoteMedia{}, &MediaError{Path: p, Reason: "cannot open", Err: err}
		}
		defer f.Close()
		readers = append(readers, f)
	}

	opts := &goinsta.UploadOptions{Caption: caption}
	if len(readers) == 1 {
		opts.File = readers[0]
	} else {
		opts.Album = readers
	}
	if thumbnail != "" {
		f, err := os.Open(thumbnail)
		if err != nil {
			return RemoteMedia{}, &MediaError{Path: thumbnail, Reason: "cannot open", Err: err}
		}
		defer f.Close()
		opts.Thumbnail = f
	}

	item, err := inst.Upload(opts)
	if err != nil {
		return RemoteMedia{}, classify(op, opWrite, err)
	}
	if item == nil {
		return RemoteMedia{}, &UploadError{Op: op, Err: errors.New("no media returned")}
	}
	return newRemoteMedia(fmt.Sprint(item.ID), item.Code, item.MediaType, 0, caption), nil
}

// UploadPhoto posts a single image.
func (c *GoinstaClient) UploadPhoto(ctx context.Context, path, caption string) (RemoteMedia, error) {
	return c.upload(ctx, "photo upload", []string{path}, "", caption)
}

// UploadVideo posts a feed video with an optional cover image.
func (c *GoinstaClient) UploadVideo(ctx context.Context, path, caption, thumbnail string) (RemoteMedia, error) {
	return c.upload(ctx, "video upload", []string{path}, thumbnail, caption)
}

// UploadReel publishes the clip as a feed video; Instagram shares feed
// videos to the Reels tab.
func (c *GoinstaClient) UploadReel(ctx context.Context, path, caption, thumbnail string) (RemoteMedia, error) {
	return c.upload(ctx, "reel upload", []string{path}, thumbnail, caption)
}

// UploadAlbum posts a carousel of images and videos.
func (c *GoinstaClient) UploadAlbum(ctx context.Context, paths []string, caption string) (RemoteMedia, error) {
	if len(paths) < 2 {
		return RemoteMedia{}, &MediaError{Path: fmt.Sprint(paths), Reason: "album needs at least two files"}
	}
	return c.upload(ctx, "album upload", paths, "", caption)
}

// LookupUser resolves a username and remembers the profile for Follow,
// Unfollow and UserMedia.
func (c *GoinstaClient) LookupUser(ctx context.Context, username string) (RemoteUser, error) {
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

func (c *GoinstaClient) cachedUser(id int64) (*goinsta.User, error) {
	user, ok := c.users[id]
	if !ok {
		return nil, &NotFoundError{Kind: "user id", Name: fmt.Sprint(id)}
	}
	return user, nil
}

// Follow follows a user resolved by LookupUser.
func (c *GoinstaClient) Follow(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user, err := c.cachedUser(userID)
	if err != nil {
		return err
	}
	return classify("follow", opWrite, user.Follow())
}

// Unfollow stops following a user resolved by LookupUser.
func (c *GoinstaClient) Unfollow(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user, err := c.cachedUser(userID)
	if err != nil {
		return err
	}
	return classify("unfollow", opWrite, user.Unfollow())
}

// Account returns fresh statistics for the logged-in account.
func (c *GoinstaClient) Account(ctx context.Context) (AccountInfo, error) {
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

func (c *GoinstaClient) mediaFeed(mediaID string) (*goinsta.FeedMedia, error) {
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
	return feed, nil
}

// Like likes the media once; an already liked item is left alone.
func (c *GoinstaClient) Like(ctx context.Context, mediaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	feed, err := c.mediaFeed(mediaID)
	if err != nil {
		return err
	}
	item := feed.Items[0]
	if item.HasLiked {
		c.log.Infow("Media already liked", "media", mediaID)
		return nil
	}
	return classify("like", opWrite, item.Like())
}

// Comment posts text under the media.
func (c *GoinstaClient) Comment(ctx context.Context, mediaID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	feed, err := c.mediaFeed(mediaID)
	if err != nil {
		return err
	}
	item := feed.Items[0]
	return classify("comment", opWrite, item.Comment(text))
}

// UserMedia pages through the user's feed. The feed keeps the error that
// stopped it; ErrNoMore is the normal end.
func (c *GoinstaClient) UserMedia(ctx context.Context, userID int64, amount int) ([]RemoteMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, err := c.cachedUser(userID)
	if err != nil {
		return nil, err
	}

	var out []RemoteMedia
	feed := user.Feed()
	for len(out) < amount && feed.Next() {
		for _, item := range feed.Items {
			if len(out) == amount {
				break
			}
			out = append(out, newRemoteMedia(fmt.Sprint(item.ID), item.Code, item.MediaType, 0, ""))
		}
	}
	if err := feed.Error(); err != nil && !errors.Is(err, goinsta.ErrNoMore) {
		c.log.Warnw("User feed stopped early", "user", user.Username, "items", len(out), "error", err)
		return nil, classify("user media", opRead, err)
	}
	return out, nil
}

var _ Client = (*GoinstaClient)(nil)
