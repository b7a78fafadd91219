// Package config holds the settings of one run. A Config is built once from
// flags, environment and config file, validated, then passed by reference
// to every component.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/openmined/syftvault/internal/storage"
	"github.com/openmined/syftvault/internal/utils"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "SYFTVAULT"
	configFileName = "config"
)

var (
	home, _         = os.UserHomeDir()
	DefaultStateDir = filepath.Join(home, ".syftvault")
	DefaultRetries  = 3
)

var ErrNoRootURL = errors.New("root URL is required")

type Config struct {
	// RootURL is the backup destination on backup and the source on restore.
	RootURL    string
	Passphrase string
	Exclude    []string
	IgnoreFile string
	Verbose    bool
	DryRun     bool
	StateDir   string
	TempDir    string
	HashCache  bool
	LogFile    string
	// Retries bounds index save attempts when not prompting.
	Retries    int
	SSHKey     string
	KnownHosts string

	// Path is the config file that was read, if any.
	Path string
}

// Validate normalizes paths and rejects unusable settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RootURL) == "" {
		return ErrNoRootURL
	}
	if _, err := storage.ParseRoot(c.RootURL); err != nil {
		return fmt.Errorf("root url: %w", err)
	}

	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("exclude pattern %q is invalid", p)
		}
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	var err error
	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	for _, p := range []*string{&c.TempDir, &c.IgnoreFile, &c.LogFile, &c.SSHKey, &c.KnownHosts} {
		if *p == "" {
			continue
		}
		if *p, err = utils.ResolvePath(*p); err != nil {
			return err
		}
	}
	if c.IgnoreFile != "" && !utils.FileExists(c.IgnoreFile) {
		return fmt.Errorf("ignore file %s not found", c.IgnoreFile)
	}

	return nil
}

func (c *Config) rootID() string {
	sum := sha256.Sum256([]byte(strings.TrimRight(c.RootURL, "/")))
	return hex.EncodeToString(sum[:8])
}

// LockPath is the advisory lock file for runs against RootURL.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "locks", c.rootID()+".lock")
}

// HashCachePath is the content hash cache shared by all roots.
func (c *Config) HashCachePath() string {
	return filepath.Join(c.StateDir, "hashcache.db")
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{SSHKeyPath: c.SSHKey, KnownHostsPath: c.KnownHosts}
}

func (c *Config) Encrypted() bool {
	return c.Passphrase != ""
}

// LogValue keeps the passphrase out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("root", c.RootURL),
		slog.String("passphrase", utils.MaskSecret(c.Passphrase)),
		slog.Any("exclude", c.Exclude),
		slog.Bool("dry_run", c.DryRun),
		slog.Bool("hash_cache", c.HashCache),
		slog.String("state_dir", c.StateDir),
	)
}

// NewViper prepares a viper instance reading, in increasing precedence, the
// config file, a .env file in the working directory and SYFTVAULT_*
// variables. Flags are bound by the caller.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(DefaultStateDir)
		v.AddConfigPath(filepath.Join(home, ".config", "syftvault"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("retries", DefaultRetries)
	return v, nil
}

// FromViper builds a Config from v. Call Validate on the result.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		RootURL:    v.GetString("root"),
		Passphrase: v.GetString("passphrase"),
		Exclude:    v.GetStringSlice("exclude"),
		IgnoreFile: v.GetString("ignore_file"),
		Verbose:    v.GetBool("verbose"),
		DryRun:     v.GetBool("dry_run"),
		StateDir:   v.GetString("state_dir"),
		TempDir:    v.GetString("temp_dir"),
		HashCache:  v.GetBool("hash_cache"),
		LogFile:    v.GetString("log_file"),
		Retries:    v.GetInt("retries"),
		SSHKey:     v.GetString("ssh_key"),
		KnownHosts: v.GetString("known_hosts"),
		Path:       v.ConfigFileUsed(),
	}
}
