// Package instatest provides an in-memory instactl.Client for tests.
package instatest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/derankin/instactl"
)

// Method names accepted by FailNext and Calls.
const (
	MethodRestore        = "Restore"
	MethodSnapshot       = "Snapshot"
	MethodLogin          = "Login"
	MethodTwoFactorLogin = "TwoFactorLogin"
	MethodValidate       = "Validate"
	MethodLogout         = "Logout"
	MethodUploadPhoto    = "UploadPhoto"
	MethodUploadVideo    = "UploadVideo"
	MethodUploadReel     = "UploadReel"
	MethodUploadAlbum    = "UploadAlbum"
	MethodLookupUser     = "LookupUser"
	MethodFollow         = "Follow"
	MethodUnfollow       = "Unfollow"
	MethodAccount        = "Account"
	MethodLike           = "Like"
	MethodComment        = "Comment"
	MethodUserMedia      = "UserMedia"
)

const sessionPrefix = "instatest-session:"

// Client records every call and can be told to fail the next N calls of a
// method with given errors.
type Client struct {
	mu sync.Mutex

	// Password is the only password Login accepts; empty accepts any.
	Password string
	// TwoFactorCode, when set, makes Login demand a code first.
	TwoFactorCode string
	// RejectSessions makes Validate report the stored session as dead.
	RejectSessions bool

	Users       map[string]instactl.RemoteUser
	AccountInfo instactl.AccountInfo
	Media       map[int64][]instactl.RemoteMedia

	Follows   []int64
	Unfollows []int64
	Likes     []string
	Comments  []string
	Uploads   [][]string

	username string
	loggedIn bool
	nextID   int
	calls    map[string]int
	fail     map[string][]error
}

func New() *Client {
	return &Client{
		Users: map[string]instactl.RemoteUser{},
		Media: map[int64][]instactl.RemoteMedia{},
		calls: map[string]int{},
		fail:  map[string][]error{},
	}
}

// AddUser registers a resolvable profile.
func (c *Client) AddUser(id int64, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Users[username] = instactl.RemoteUser{ID: id, Username: username}
}

// FailNext queues errs to be returned, in order, by the next calls of method.
func (c *Client) FailNext(method string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[method] = append(c.fail[method], errs...)
}

// Calls returns how many times method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// LoggedIn reports whether the fake holds a live session.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Blob is what Snapshot produces for username.
func Blob(username string) []byte {
	return []byte(sessionPrefix + username)
}

func (c *Client) enter(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	if q := c.fail[method]; len(q) > 0 {
		c.fail[method] = q[1:]
		return q[0]
	}
	return nil
}

func (c *Client) requireSession(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return &instactl.AuthError{Op: op, Err: instactl.ErrSessionInvalid}
	}
	return nil
}

func (c *Client) Restore(ctx context.Context, blob []byte) error {
	if err := c.enter(MethodRestore); err != nil {
		return err
	}
	s := string(blob)
	if !strings.HasPrefix(s, sessionPrefix) {
		return &instactl.AuthError{Op: "restore", Err: fmt.Errorf("%w: unreadable blob", instactl.ErrSessionInvalid)}
	}
	c.mu.Lock()
	c.username = strings.TrimPrefix(s, sessionPrefix)
	c.loggedIn = true
	c.mu.Unlock()
	return nil
}

func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	if err := c.enter(MethodSnapshot); err != nil {
		return nil, err
	}
	if err := c.requireSession("snapshot"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Blob(c.username), nil
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	if err := c.enter(MethodLogin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Password != "" && password != c.Password {
		return &instactl.AuthError{Op: "login", Err: errors.New("bad_password")}
	}
	c.username = username
	if c.TwoFactorCode != "" {
		return &instactl.AuthError{Op: "login", Err: instactl.ErrTwoFactorRequired}
	}
	c.loggedIn = true
	c.RejectSessions = false
	return nil
}

func (c *Client) TwoFactorLogin(ctx context.Context, code string) error {
	if err := c.enter(MethodTwoFactorLogin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if code != c.TwoFactorCode {
		return &instactl.AuthError{Op: "two-factor", Err: errors.New("invalid code")}
	}
	c.loggedIn = true
	c.RejectSessions = false
	return nil
}

func (c *Client) Validate(ctx context.Context) error {
	if err := c.enter(MethodValidate); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn || c.RejectSessions {
		return &instactl.AuthError{Op: "validate", Err: instactl.ErrSessionInvalid}
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.enter(MethodLogout); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = false
	return nil
}

func (c *Client) upload(method string, paths []string) (instactl.RemoteMedia, error) {
	if err := c.enter(method); err != nil {
		return instactl.RemoteMedia{}, err
	}
	if err := c.requireSession(method); err != nil {
		return instactl.RemoteMedia{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.Uploads = append(c.Uploads, paths)
	code := fmt.Sprintf("C%04d", c.nextID)
	return instactl.RemoteMedia{
		ID:        fmt.Sprintf("%d_42", 1000+c.nextID),
		Code:      code,
		Permalink: "https://www.instagram.com/p/" + code + "/",
	}, nil
}

func (c *Client) UploadPhoto(ctx context.Context, path, caption string) (instactl.RemoteMedia, error) {
	return c.upload(MethodUploadPhoto, []string{path})
}

func (c *Client) UploadVideo(ctx context.Context, path, caption, thumbnail string) (instactl.RemoteMedia, error) {
	return c.upload(MethodUploadVideo, []string{path})
}

func (c *Client) UploadReel(ctx context.Context, path, caption, thumbnail string) (instactl.RemoteMedia, error) {
	return c.upload(MethodUploadReel, []string{path})
}

func (c *Client) UploadAlbum(ctx context.Context, paths []string, caption string) (instactl.RemoteMedia, error) {
	return c.upload(MethodUploadAlbum, paths)
}

func (c *Client) LookupUser(ctx context.Context, username string) (instactl.RemoteUser, error) {
	if err := c.enter(MethodLookupUser); err != nil {
		return instactl.RemoteUser{}, err
	}
	if err := c.requireSession("lookup"); err != nil {
		return instactl.RemoteUser{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.Users[username]
	if !ok {
		return instactl.RemoteUser{}, &instactl.NotFoundError{Name: username}
	}
	return u, nil
}

func (c *Client) Follow(ctx context.Context, userID int64) error {
	if err := c.enter(MethodFollow); err != nil {
		return err
	}
	if err := c.requireSession("follow"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Follows = append(c.Follows, userID)
	return nil
}

func (c *Client) Unfollow(ctx context.Context, userID int64) error {
	if err := c.enter(MethodUnfollow); err != nil {
		return err
	}
	if err := c.requireSession("unfollow"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Unfollows = append(c.Unfollows, userID)
	return nil
}

func (c *Client) Account(ctx context.Context) (instactl.AccountInfo, error) {
	if err := c.enter(MethodAccount); err != nil {
		return instactl.AccountInfo{}, err
	}
	if err := c.requireSession("account"); err != nil {
		return instactl.AccountInfo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.AccountInfo
	if info.Username == "" {
		info.Username = c.username
	}
	return info, nil
}

func (c *Client) Like(ctx context.Context, mediaID string) error {
	if err := c.enter(MethodLike); err != nil {
		return err
	}
	if err := c.requireSession("like"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Likes = append(c.Likes, mediaID)
	return nil
}

func (c *Client) Comment(ctx context.Context, mediaID, text string) error {
	if err := c.enter(MethodComment); err != nil {
		return err
	}
	if err := c.requireSession("comment"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Comments = append(c.Comments, mediaID+": "+text)
	return nil
}

func (c *Client) UserMedia(ctx context.Context, userID int64, amount int) ([]instactl.RemoteMedia, error) {
	if err := c.enter(MethodUserMedia); err != nil {
		return nil, err
	}
	if err := c.requireSession("user media"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.Media[userID]
	if len(items) > amount {
		items = items[:amount]
	}
	return append([]instactl.RemoteMedia(nil), items...), nil
}

var _ instactl.Client = (*Client)(nil)
