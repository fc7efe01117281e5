package instactl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "config.json"

// DelayRange is the [min, max] pause between attempts, in seconds.
type DelayRange [2]float64

// Min returns the lower bound as a duration.
func (d DelayRange) Min() time.Duration { return seconds(d[0]) }

// Max returns the upper bound as a duration.
func (d DelayRange) Max() time.Duration { return seconds(d[1]) }

// SetValue parses "min,max" from the environment.
func (d *DelayRange) SetValue(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return fmt.Errorf("delay range %q: want \"min,max\"", s)
	}
	var out DelayRange
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("delay range %q: %w", s, err)
		}
		out[i] = v
	}
	*d = out
	return nil
}

func (d DelayRange) String() string {
	return fmt.Sprintf("[%g, %g]", d[0], d[1])
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Config is loaded once per invocation and never mutated afterwards.
type Config struct {
	Username     string     `json:"username" env:"INSTACTL_USERNAME"`
	Password     string     `json:"password" env:"INSTACTL_PASSWORD"`
	SessionFile  string     `json:"session_file" env:"INSTACTL_SESSION_FILE"`
	SessionStore string     `json:"session_store" env:"INSTACTL_SESSION_STORE"`
	Proxy        string     `json:"proxy" env:"INSTACTL_PROXY"`
	Backend      string     `json:"backend" env:"INSTACTL_BACKEND"`
	DelayRange   DelayRange `json:"delay_range" env:"INSTACTL_DELAY_RANGE"`
	MaxRetries   int        `json:"max_retries" env:"INSTACTL_MAX_RETRIES"`
	MediaLog     string     `json:"media_log" env:"INSTACTL_MEDIA_LOG"`
	LogFile      string     `json:"log_file" env:"INSTACTL_LOG_FILE"`
}

// DefaultConfig holds the values used for keys absent from the file. They
// are seeded before decoding so an explicit zero (max_retries: 0) survives.
func DefaultConfig() Config {
	return Config{
		SessionFile: "session.json",
		DelayRange:  DelayRange{2, 5},
		MaxRetries:  3,
		MediaLog:    "posted_media.json",
		LogFile:     "instactl.log",
	}
}

// LoadConfiguration reads file and applies INSTACTL_* overrides. A missing
// file is not an error: the environment and defaults are used instead and
// found is false.
func LoadConfiguration(file string) (cfg Config, found bool, err error) {
	if file == "" {
		file = DefaultConfigFile
	}
	cfg = DefaultConfig()

	if _, statErr := os.Stat(file); statErr == nil {
		if err := cleanenv.ReadConfig(file, &cfg); err != nil {
			return Config{}, true, fmt.Errorf("read config %s: %w", file, err)
		}
		found = true
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, false, fmt.Errorf("read environment: %w", err)
		}
	} else {
		return Config{}, false, fmt.Errorf("stat config %s: %w", file, statErr)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, found, err
	}
	return cfg, found, nil
}

// Validate checks the invariants the Runner relies on.
func (c Config) Validate() error {
	var problems []string
	if c.SessionFile == "" {
		problems = append(problems, "session_file is empty")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max_retries must be >= 0")
	}
	if c.DelayRange[0] < 0 || c.DelayRange[1] < c.DelayRange[0] {
		problems = append(problems, fmt.Sprintf("delay_range %s must satisfy 0 <= min <= max", c.DelayRange))
	}
	switch c.Backend {
	case "", BackendGoinsta, BackendGoinstaV2:
	default:
		problems = append(problems, fmt.Sprintf("backend %q is not %q or %q", c.Backend, BackendGoinsta, BackendGoinstaV2))
	}
	if c.Proxy != "" {
		if u, err := url.Parse(c.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("proxy %q is not an absolute URL", c.Proxy))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SampleConfig is what the config command writes.
func SampleConfig() Config {
	cfg := DefaultConfig()
	cfg.Username = "your_username"
	cfg.Password = "your_password"
	return cfg
}

// WriteSampleConfig writes SampleConfig to path, refusing to clobber an
// existing file unless force is set.
func WriteSampleConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := json.MarshalIndent(SampleConfig(), "", "    ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), 0o600)
}
