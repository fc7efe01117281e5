package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/derankin/instactl"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool

	newClient func(cfg instactl.Config, log *zap.SugaredLogger) (instactl.Client, error)
	// sleep replaces the retry pause when set.
	sleep instactl.SleepFunc

	logger  *zap.Logger
	closers []io.Closer
	// started is set once a command body runs; errors before that come
	// from cobra's parsing and validation.
	started bool
}

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func (a *app) execute(ctx context.Context, args []string) int {
	a.started = false
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return instactl.ExitOK
	}

	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	if a.isUsageError(err) {
		return instactl.ExitUsage
	}
	return instactl.ExitCode(err)
}

// isUsageError reports errors raised before any command body ran (flag
// parsing, argument and required-flag checks, unknown commands) and the
// usageError a body returns itself.
func (a *app) isUsageError(err error) bool {
	var ue usageError
	return errors.As(err, &ue) || !a.started
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instactl",
		Short: "Post to Instagram and manage an account from the command line",
		Long: "instactl logs in once, keeps the session on disk, and runs one account action per invocation: " +
			"posting photos, videos, reels and albums, following and unfollowing, liking and commenting.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  instactl login -u myaccount
  instactl post-photo -p ./shot.jpg -c "hello world"
  instactl post-album -m a.jpg -m b.jpg -c "weekend"
  instactl follow -u instagram`,
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", instactl.DefaultConfigFile, "Path to the JSON config file")
	cmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Enable debug logging")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	cmd.AddCommand(
		a.loginCommand(),
		a.postPhotoCommand(),
		a.postVideoCommand(),
		a.postReelCommand(),
		a.postAlbumCommand(),
		a.infoCommand(),
		a.followCommand(),
		a.unfollowCommand(),
		a.likeCommand(),
		a.commentCommand(),
		a.mediasCommand(),
		a.statusCommand(),
		a.logoutCommand(),
		a.configCommand(),
	)
	return cmd
}

// newRunner loads the config and wires the logger, session store, retrier
// and client into a Runner.
func (a *app) newRunner() (*instactl.Runner, error) {
	cfg, found, err := instactl.LoadConfiguration(a.configPath)
	if err != nil {
		return nil, err
	}

	a.logger = instactl.NewLogger(instactl.LogOptions{
		File:    cfg.LogFile,
		Verbose: a.verbose,
		Console: a.stderr,
	})
	log := a.logger.Sugar()
	if found {
		log.Infof("Loaded configuration from %s", a.configPath)
	} else {
		log.Warnf("No config file at %s, using environment and defaults; run `instactl config` to create one", a.configPath)
	}
	log.Debugf("config: running as [%s], max retry [%d], delay %s", cfg.Username, cfg.MaxRetries, cfg.DelayRange)

	store, err := instactl.OpenSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	retrier := instactl.NewRetrier(cfg, log)
	if a.sleep != nil {
		retrier.Sleep = a.sleep
	}

	client, err := a.newClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return instactl.New(cfg, client,
		instactl.WithLogger(log),
		instactl.WithSessionStore(store),
		instactl.WithRetrier(retrier),
		instactl.WithPrompter(instactl.NewTermPrompter(a.stdin, a.stderr)),
	), nil
}

// body marks the command as started before running fn.
func (a *app) body(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a.started = true
		return fn(cmd, args)
	}
}

func (a *app) withRunner(fn func(ctx context.Context, r *instactl.Runner) error) func(*cobra.Command, []string) error {
	return a.body(func(cmd *cobra.Command, _ []string) error {
		r, err := a.newRunner()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), r)
	})
}

func (a *app) loginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			if err := r.Login(ctx, username, password); err != nil {
				return err
			}
			info, err := r.Info(ctx)
			if err != nil {
				fmt.Fprintln(a.stdout, "✓ Logged in")
				return nil
			}
			fmt.Fprintf(a.stdout, "\n✓ Logged in as: %s\n", info.Username)
			fmt.Fprintf(a.stdout, "  Followers: %d\n", info.Followers)
			fmt.Fprintf(a.stdout, "  Following: %d\n", info.Following)
			fmt.Fprintf(a.stdout, "  Posts: %d\n", info.MediaCount)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Instagram username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Instagram password (prompted when missing)")
	return cmd
}

func (a *app) printPosted(kind string, rec instactl.PostedMedia) {
	fmt.Fprintf(a.stdout, "✓ %s posted successfully!\n", kind)
	fmt.Fprintf(a.stdout, "  Media ID: %s\n", rec.RemoteMediaID)
	if rec.Permalink != "" {
		fmt.Fprintf(a.stdout, "  URL: %s\n", rec.Permalink)
	}
}

func (a *app) postPhotoCommand() *cobra.Command {
	var photo, caption string
	cmd := &cobra.Command{
		Use:   "post-photo",
		Short: "Post a photo",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			rec, err := r.PostPhoto(ctx, photo, caption)
			if err != nil {
				return err
			}
			a.printPosted("Photo", rec)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&photo, "photo", "p", "", "Path to photo file")
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "Caption for the photo")
	_ = cmd.MarkFlagRequired("photo")
	return cmd
}

func (a *app) postVideoCommand() *cobra.Command {
	var video, caption, thumbnail string
	cmd := &cobra.Command{
		Use:   "post-video",
		Short: "Post a video",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			rec, err := r.PostVideo(ctx, video, caption, thumbnail)
			if err != nil {
				return err
			}
			a.printPosted("Video", rec)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&video, "video", "v", "", "Path to video file")
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "Caption for the video")
	cmd.Flags().StringVarP(&thumbnail, "thumbnail", "t", "", "Path to thumbnail image")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}

func (a *app) postReelCommand() *cobra.Command {
	var video, caption, thumbnail string
	cmd := &cobra.Command{
		Use:   "post-reel",
		Short: "Post a reel",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			rec, err := r.PostReel(ctx, video, caption, thumbnail)
			if err != nil {
				return err
			}
			a.printPosted("Reel", rec)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&video, "video", "v", "", "Path to video file")
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "Caption for the reel")
	cmd.Flags().StringVarP(&thumbnail, "thumbnail", "t", "", "Path to thumbnail image")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}

func (a *app) postAlbumCommand() *cobra.Command {
	var (
		media   []string
		caption string
	)
	cmd := &cobra.Command{
		Use:   "post-album -m FILE -m FILE... [FILE...]",
		Short: "Post an album of 2 to 10 photos or videos",
		Args:  cobra.ArbitraryArgs,
		RunE: a.body(func(cmd *cobra.Command, args []string) error {
			paths := append(append([]string(nil), media...), args...)
			if len(paths) == 0 {
				return usageError{errors.New(`required flag(s) "media" not set`)}
			}
			r, err := a.newRunner()
			if err != nil {
				return err
			}
			rec, err := r.PostAlbum(cmd.Context(), paths, caption)
			if err != nil {
				return err
			}
			a.printPosted("Album", rec)
			return nil
		}),
	}
	cmd.Flags().StringArrayVarP(&media, "media", "m", nil, "Path to a media file (repeat for each file)")
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "Caption for the album")
	return cmd
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show account information",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			info, err := r.Info(ctx)
			if err != nil {
				return err
			}
			rule := strings.Repeat("=", 40)
			fmt.Fprintf(a.stdout, "\n%s\nAccount Information\n%s\n", rule, rule)
			fmt.Fprintf(a.stdout, "Username: %s\n", info.Username)
			fmt.Fprintf(a.stdout, "Full Name: %s\n", info.FullName)
			fmt.Fprintf(a.stdout, "Followers: %d\n", info.Followers)
			fmt.Fprintf(a.stdout, "Following: %d\n", info.Following)
			fmt.Fprintf(a.stdout, "Total Posts: %d\n", info.MediaCount)
			fmt.Fprintln(a.stdout, rule)
			return nil
		}),
	}
}

func (a *app) followCommand() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Follow a user",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			if err := r.Follow(ctx, username); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "✓ Now following @%s\n", strings.TrimPrefix(username, "@"))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to follow")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) unfollowCommand() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "unfollow",
		Short: "Unfollow a user",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			if err := r.Unfollow(ctx, username); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "✓ Unfollowed @%s\n", strings.TrimPrefix(username, "@"))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to unfollow")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) likeCommand() *cobra.Command {
	var mediaID string
	cmd := &cobra.Command{
		Use:   "like",
		Short: "Like a media item",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			if err := r.Like(ctx, mediaID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "✓ Liked %s\n", mediaID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&mediaID, "media", "m", "", "Media id")
	_ = cmd.MarkFlagRequired("media")
	return cmd
}

func (a *app) commentCommand() *cobra.Command {
	var mediaID, text string
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Comment on a media item",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			if err := r.Comment(ctx, mediaID, text); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "✓ Commented on %s\n", mediaID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&mediaID, "media", "m", "", "Media id")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Comment text")
	_ = cmd.MarkFlagRequired("media")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func (a *app) mediasCommand() *cobra.Command {
	var (
		username string
		amount   int
	)
	cmd := &cobra.Command{
		Use:   "medias",
		Short: "List a user's recent media",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			items, err := r.UserMedia(ctx, username, amount)
			if err != nil {
				return err
			}
			for _, m := range items {
				fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", m.ID, m.Code, m.Permalink)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().IntVarP(&amount, "amount", "n", 10, "Number of items")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a stored session exists and is still valid",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			st, err := r.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Session: %s\n", st.Location)
			switch {
			case st.Valid:
				fmt.Fprintln(a.stdout, "Status: logged in")
			case st.Persisted:
				fmt.Fprintf(a.stdout, "Status: session rejected (%s)\n", st.Reason)
			default:
				fmt.Fprintln(a.stdout, "Status: logged out")
			}
			return nil
		}),
	}
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and delete the stored session",
		Args:  cobra.NoArgs,
		RunE: a.withRunner(func(ctx context.Context, r *instactl.Runner) error {
			if err := r.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "✓ Logged out successfully!")
			return nil
		}),
	}
}

func (a *app) configCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: a.body(func(cmd *cobra.Command, _ []string) error {
			if err := instactl.WriteSampleConfig(a.configPath, force); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created sample %s. Please edit it with your credentials!\n", a.configPath)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
