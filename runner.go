package instactl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is the runner's view of the session.
type State int

const (
	LoggedOut State = iota
	LoggedIn
)

func (s State) String() string {
	if s == LoggedIn {
		return "logged in"
	}
	return "logged out"
}

const (
	defaultUserMediaAmount = 10
	reelPermalinkBase      = "https://www.instagram.com/reel/"
)

// Runner performs one account action per invocation. It restores and
// persists the session around the Client and runs every remote call
// through the Retrier.
type Runner struct {
	cfg      Config
	client   Client
	sessions SessionStore
	media    *MediaLog
	retry    *Retrier
	prompt   Prompter
	log      *zap.SugaredLogger
	now      func() time.Time

	state State
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.SugaredLogger) Option { return func(r *Runner) { r.log = l } }

// WithSessionStore replaces the file store named by session_file.
func WithSessionStore(s SessionStore) Option { return func(r *Runner) { r.sessions = s } }

// WithMediaLog replaces the log named by media_log.
func WithMediaLog(m *MediaLog) Option { return func(r *Runner) { r.media = m } }

// WithRetrier replaces the retry policy built from the config.
func WithRetrier(rt *Retrier) Option { return func(r *Runner) { r.retry = rt } }

// WithPrompter sets where passwords and one-time codes are read from.
func WithPrompter(p Prompter) Option { return func(r *Runner) { r.prompt = p } }

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New returns a Runner for cfg. Unset collaborators default to the file
// session store, the configured media log and a real-time Retrier.
func New(cfg Config, client Client, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		client: client,
		prompt: NoPrompter{},
		log:    zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessions == nil {
		r.sessions = NewFileSessionStore(cfg.SessionFile)
	}
	if r.media == nil {
		r.media = NewMediaLog(cfg.MediaLog)
	}
	if r.retry == nil {
		r.retry = NewRetrier(cfg, r.log)
	}
	return r
}

// State reports whether the runner holds a live session.
func (r *Runner) State() State { return r.state }

// Login reuses a persisted session the remote side still accepts, and
// otherwise logs in with credentials. Arguments override the config.
func (r *Runner) Login(ctx context.Context, username, password string) error {
	username = firstNonEmpty(username, r.cfg.Username)
	password = firstNonEmpty(password, r.cfg.Password)

	ok, err := r.resume(ctx, true)
	if err != nil {
		return err
	}
	if ok {
		r.log.Infow("Reusing existing session", "session", r.sessions.Location())
		return nil
	}
	return r.credentialLogin(ctx, username, password)
}

// resume restores the persisted session. With validate set the remote side
// is asked whether it still accepts it; a rejected or unreadable session is
// deleted and resume reports false.
func (r *Runner) resume(ctx context.Context, validate bool) (bool, error) {
	blob, err := r.sessions.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := r.client.Restore(ctx, blob); err != nil {
		r.log.Warnw("Could not load session", "session", r.sessions.Location(), "error", err)
		r.dropSession(ctx)
		return false, nil
	}
	if validate {
		if err := r.retry.Do(ctx, "validate session", r.client.Validate); err != nil {
			if !isAuthError(err) {
				return false, err
			}
			r.log.Warnw("Stored session rejected", "error", err)
			r.dropSession(ctx)
			return false, nil
		}
	}

	r.state = LoggedIn
	r.log.Debugw("Loaded existing session", "session", r.sessions.Location())
	return true, nil
}

func (r *Runner) credentialLogin(ctx context.Context, username, password string) error {
	if username == "" {
		return &AuthError{Op: "login", Err: errors.New("username is required")}
	}
	if password == "" {
		p, err := r.prompt.Secret(fmt.Sprintf("Password for %s: ", username))
		if err != nil || p == "" {
			return &AuthError{Op: "login", Err: errors.New("password is required")}
		}
		password = p
	}

	r.log.Infof("Attempting login for user: %s", username)
	err := r.retry.Do(ctx, "login", func(ctx context.Context) error {
		return r.client.Login(ctx, username, password)
	})
	if errors.Is(err, ErrTwoFactorRequired) {
		r.log.Warn("Two-factor authentication required")
		if !supports(r.client, CapTwoFactor) {
			return &AuthError{Op: "two-factor", Err: fmt.Errorf("%w: backend cannot submit a one-time code: %w", ErrTwoFactorRequired, ErrUnsupported)}
		}
		code, perr := r.prompt.Prompt("Enter 2FA code: ")
		code = strings.TrimSpace(code)
		if perr != nil || code == "" {
			return &AuthError{Op: "two-factor", Err: fmt.Errorf("no code entered: %w", ErrTwoFactorRequired)}
		}
		err = r.retry.Do(ctx, "two-factor login", func(ctx context.Context) error {
			return r.client.TwoFactorLogin(ctx, code)
		})
	}
	if err != nil {
		if IsTransient(err) || isAuthError(err) || errors.Is(err, context.Canceled) {
			return err
		}
		return &AuthError{Op: "login", Err: err}
	}

	r.state = LoggedIn
	if err := r.persist(ctx); err != nil {
		return err
	}
	r.log.Infof("Successfully logged in as %s", username)
	return nil
}

func (r *Runner) persist(ctx context.Context) error {
	blob, err := r.client.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot session: %w", err)
	}
	if err := r.sessions.Save(ctx, blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	r.log.Debugw("Session saved", "session", r.sessions.Location())
	return nil
}

// refresh persists rotated tokens after an action. The action already
// happened, so a failure here is only logged.
func (r *Runner) refresh(ctx context.Context) {
	if err := r.persist(ctx); err != nil {
		r.log.Errorw("Failed to refresh session", "error", err)
	}
}

func (r *Runner) dropSession(ctx context.Context) {
	r.state = LoggedOut
	if err := r.sessions.Delete(ctx); err != nil {
		r.log.Errorw("Failed to remove session", "error", err)
	}
}

func (r *Runner) ensureLoggedIn(ctx context.Context) error {
	if r.state == LoggedIn {
		return nil
	}
	ok, err := r.resume(ctx, false)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if r.cfg.Username != "" && r.cfg.Password != "" {
		return r.credentialLogin(ctx, r.cfg.Username, r.cfg.Password)
	}
	return &AuthError{Op: "session", Err: ErrNotLoggedIn}
}

// call runs fn under the retry policy with a live session. When the remote
// side reports the session invalid, the session is dropped and, if the
// config holds credentials, one re-login and one more round are attempted.
func (r *Runner) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := r.ensureLoggedIn(ctx); err != nil {
		return err
	}

	err := r.retry.Do(ctx, op, fn)
	if !errors.Is(err, ErrSessionInvalid) {
		return err
	}

	r.log.Warnw("Session invalidated by the remote side", "op", op, "error", err)
	r.dropSession(ctx)
	if r.cfg.Username == "" || r.cfg.Password == "" {
		return &AuthError{Op: op, Err: fmt.Errorf("%w: %w", ErrSessionInvalid, ErrNotLoggedIn)}
	}
	if err := r.credentialLogin(ctx, r.cfg.Username, r.cfg.Password); err != nil {
		return err
	}
	return r.retry.Do(ctx, op, fn)
}

// PostPhoto uploads a single image.
func (r *Runner) PostPhoto(ctx context.Context, path, caption string) (PostedMedia, error) {
	abs, err := validateMedia(path, kindImage)
	if err != nil {
		return PostedMedia{}, err
	}
	r.log.Infof("Preparing to post photo: %s", abs)
	return r.post(ctx, MediaPhoto, []string{abs}, caption, func(ctx context.Context) (RemoteMedia, error) {
		return r.client.UploadPhoto(ctx, abs, caption)
	})
}

// PostVideo uploads a feed video with an optional thumbnail image.
func (r *Runner) PostVideo(ctx context.Context, path, caption, thumbnail string) (PostedMedia, error) {
	if err := r.require(CapVideoUpload); err != nil {
		return PostedMedia{}, err
	}
	abs, thumb, err := validateVideo(path, thumbnail)
	if err != nil {
		return PostedMedia{}, err
	}
	r.log.Infof("Preparing to post video: %s", abs)
	return r.post(ctx, MediaVideo, []string{abs}, caption, func(ctx context.Context) (RemoteMedia, error) {
		return r.client.UploadVideo(ctx, abs, caption, thumb)
	})
}

// PostReel uploads a reel with an optional thumbnail image.
func (r *Runner) PostReel(ctx context.Context, path, caption, thumbnail string) (PostedMedia, error) {
	if err := r.require(CapReelUpload); err != nil {
		return PostedMedia{}, err
	}
	abs, thumb, err := validateVideo(path, thumbnail)
	if err != nil {
		return PostedMedia{}, err
	}
	r.log.Infof("Preparing to post reel: %s", abs)
	return r.post(ctx, MediaReel, []string{abs}, caption, func(ctx context.Context) (RemoteMedia, error) {
		return r.client.UploadReel(ctx, abs, caption, thumb)
	})
}

// PostAlbum uploads a carousel. Every file is validated before the first
// remote call; a failed upload aborts the whole album.
func (r *Runner) PostAlbum(ctx context.Context, paths []string, caption string) (PostedMedia, error) {
	abs, err := validateAlbum(paths)
	if err != nil {
		return PostedMedia{}, err
	}
	r.log.Infof("Preparing to post album with %d files", len(abs))
	return r.post(ctx, MediaAlbum, abs, caption, func(ctx context.Context) (RemoteMedia, error) {
		return r.client.UploadAlbum(ctx, abs, caption)
	})
}

// require fails fast, before any session or remote work, when the client
// cannot perform capability.
func (r *Runner) require(capability Capability) error {
	if supports(r.client, capability) {
		return nil
	}
	return &UploadError{Op: string(capability), Err: fmt.Errorf("configured backend: %w", ErrUnsupported)}
}

func validateVideo(path, thumbnail string) (string, string, error) {
	abs, err := validateMedia(path, kindVideo)
	if err != nil {
		return "", "", err
	}
	if thumbnail == "" {
		return abs, "", nil
	}
	thumb, err := validateMedia(thumbnail, kindImage)
	if err != nil {
		return "", "", err
	}
	return abs, thumb, nil
}

func (r *Runner) post(ctx context.Context, mt MediaType, paths []string, caption string, upload func(ctx context.Context) (RemoteMedia, error)) (PostedMedia, error) {
	op := string(mt) + " upload"

	var media RemoteMedia
	err := r.call(ctx, op, func(ctx context.Context) error {
		m, err := upload(ctx)
		if err != nil {
			return err
		}
		media = m
		return nil
	})
	if err != nil {
		r.log.Errorf("Failed to post %s: %v", mt, err)
		return PostedMedia{}, asUploadError(op, err)
	}
	r.log.Infof("Posted %s successfully! Media ID: %s", mt, media.ID)

	permalink := media.Permalink
	if mt == MediaReel && media.Code != "" {
		permalink = reelPermalinkBase + media.Code + "/"
	}
	rec, err := r.media.Append(PostedMedia{
		MediaType:     mt,
		FilePaths:     paths,
		Caption:       caption,
		Timestamp:     r.now().UTC(),
		RemoteMediaID: media.ID,
		MediaCode:     media.Code,
		Permalink:     permalink,
	})
	r.refresh(ctx)
	if err != nil {
		return rec, err
	}
	r.log.Infof("Metadata saved to %s", r.media.Path())
	return rec, nil
}

// asUploadError leaves classified errors alone and treats anything else the
// client returned as a remote rejection.
func asUploadError(op string, err error) error {
	var (
		authErr     *AuthError
		mediaErr    *MediaError
		uploadErr   *UploadError
		notFoundErr *NotFoundError
	)
	switch {
	case IsTransient(err),
		errors.As(err, &authErr),
		errors.As(err, &mediaErr),
		errors.As(err, &uploadErr),
		errors.As(err, &notFoundErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &UploadError{Op: op, Err: err}
}

func (r *Runner) lookup(ctx context.Context, username string) (RemoteUser, error) {
	name := normalizeUsername(username)
	if name == "" {
		return RemoteUser{}, &NotFoundError{Name: username}
	}

	var user RemoteUser
	err := r.call(ctx, "lookup "+name, func(ctx context.Context) error {
		u, err := r.client.LookupUser(ctx, name)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

// Follow resolves username and follows it.
func (r *Runner) Follow(ctx context.Context, username string) error {
	user, err := r.lookup(ctx, username)
	if err != nil {
		r.log.Errorf("Failed to follow %s: %v", username, err)
		return err
	}
	if err := r.call(ctx, "follow", func(ctx context.Context) error {
		return r.client.Follow(ctx, user.ID)
	}); err != nil {
		r.log.Errorf("Failed to follow %s: %v", username, err)
		return err
	}
	r.refresh(ctx)
	r.log.Infof("Successfully followed %s", user.Username)
	return nil
}

// Unfollow resolves username and unfollows it.
func (r *Runner) Unfollow(ctx context.Context, username string) error {
	user, err := r.lookup(ctx, username)
	if err != nil {
		r.log.Errorf("Failed to unfollow %s: %v", username, err)
		return err
	}
	if err := r.call(ctx, "unfollow", func(ctx context.Context) error {
		return r.client.Unfollow(ctx, user.ID)
	}); err != nil {
		r.log.Errorf("Failed to unfollow %s: %v", username, err)
		return err
	}
	r.refresh(ctx)
	r.log.Infof("Successfully unfollowed %s", user.Username)
	return nil
}

// Info fetches the logged-in account's statistics.
func (r *Runner) Info(ctx context.Context) (AccountInfo, error) {
	var info AccountInfo
	err := r.call(ctx, "account info", func(ctx context.Context) error {
		i, err := r.client.Account(ctx)
		if err != nil {
			return err
		}
		info = i
		return nil
	})
	if err != nil {
		r.log.Errorf("Failed to get user info: %v", err)
		return AccountInfo{}, err
	}
	r.log.Infof("Logged in as: %s", info.Username)
	return info, nil
}

// Like likes a media item by id.
func (r *Runner) Like(ctx context.Context, mediaID string) error {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return &NotFoundError{Kind: "media", Name: mediaID}
	}
	if err := r.call(ctx, "like", func(ctx context.Context) error {
		return r.client.Like(ctx, mediaID)
	}); err != nil {
		r.log.Errorf("Failed to like media: %v", err)
		return err
	}
	r.refresh(ctx)
	r.log.Infof("Successfully liked media %s", mediaID)
	return nil
}

// Comment posts text under a media item.
func (r *Runner) Comment(ctx context.Context, mediaID, text string) error {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return &NotFoundError{Kind: "media", Name: mediaID}
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("comment text is empty")
	}
	if err := r.call(ctx, "comment", func(ctx context.Context) error {
		return r.client.Comment(ctx, mediaID, text)
	}); err != nil {
		r.log.Errorf("Failed to comment: %v", err)
		return err
	}
	r.refresh(ctx)
	r.log.Infof("Successfully commented on media %s", mediaID)
	return nil
}

// UserMedia lists up to amount recent items of username.
func (r *Runner) UserMedia(ctx context.Context, username string, amount int) ([]RemoteMedia, error) {
	if amount <= 0 {
		amount = defaultUserMediaAmount
	}
	user, err := r.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	var items []RemoteMedia
	err = r.call(ctx, "user media", func(ctx context.Context) error {
		m, err := r.client.UserMedia(ctx, user.ID, amount)
		if err != nil {
			return err
		}
		items = m
		return nil
	})
	if err != nil {
		r.log.Errorf("Failed to get user media: %v", err)
		return nil, err
	}
	r.log.Infof("Retrieved %d media from %s", len(items), user.Username)
	return items, nil
}

// Logout ends the remote session when there is one and always removes the
// persisted blob.
func (r *Runner) Logout(ctx context.Context) error {
	if r.state != LoggedIn {
		ok, err := r.resume(ctx, false)
		if err != nil {
			r.log.Warnw("Could not load session for logout", "error", err)
		}
		if !ok {
			r.log.Info("No active session")
		}
	}

	if r.state == LoggedIn {
		if err := r.retry.Do(ctx, "logout", r.client.Logout); err != nil {
			r.log.Warnw("Remote logout failed, removing session anyway", "error", err)
		} else {
			r.log.Info("Logged out successfully")
		}
	}

	r.state = LoggedOut
	if err := r.sessions.Delete(ctx); err != nil {
		return err
	}
	r.log.Infow("Session removed", "session", r.sessions.Location())
	return nil
}

// SessionStatus is reported by the status command.
type SessionStatus struct {
	Location  string
	Persisted bool
	Valid     bool
	Reason    string
}

// Status reports whether a session is stored and still accepted. It never
// deletes anything.
func (r *Runner) Status(ctx context.Context) (SessionStatus, error) {
	st := SessionStatus{Location: r.sessions.Location()}

	blob, err := r.sessions.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		st.Reason = "no session stored"
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Persisted = true

	if err := r.client.Restore(ctx, blob); err != nil {
		st.Reason = err.Error()
		return st, nil
	}
	if err := r.retry.Do(ctx, "validate session", r.client.Validate); err != nil {
		if !isAuthError(err) {
			return st, err
		}
		st.Reason = err.Error()
		return st, nil
	}
	st.Valid = true
	r.state = LoggedIn
	return st, nil
}

func isAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) || errors.Is(err, ErrSessionInvalid)
}

func normalizeUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
