package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override,
// e.g. THUMBS_THUMBNAIL_SIZE=128.
const EnvPrefix = "THUMBS"

// Thumbnail size limits, in pixels along the longest edge.
const (
	MinThumbnailSize     = 20
	MaxThumbnailSize     = 256
	DefaultThumbnailSize = 80
)

// DefaultPreloadCap is the number of neighbouring images considered around
// the active one (half on each side).
const DefaultPreloadCap = 400

// Backend names
const (
	BackendFile     = "file"
	BackendDatabase = "database"
	// BackendNone keeps no thumbnails; every request is generated anew.
	BackendNone = "none"
)

// Decoder names
const (
	DecoderImaging = "imaging"
	DecoderVips    = "vips"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete engine configuration.
type Config struct {
	CacheDir     string `mapstructure:"cache_dir"`
	DatabasePath string `mapstructure:"database_path"`
	Backend      string `mapstructure:"backend"`

	ThumbnailSize        int     `mapstructure:"thumbnail_size"`
	PreloadMode          string  `mapstructure:"preload_mode"`
	PreloadCap           int     `mapstructure:"preload_cap"`
	PreloadFullDirectory bool    `mapstructure:"preload_full_directory"`
	ViewportWindow       int     `mapstructure:"viewport_window"`
	DisableThumbnails    bool    `mapstructure:"disable_thumbnails"`
	FilenameOnly         bool    `mapstructure:"filename_only"`
	FilenameFontScale    float64 `mapstructure:"filename_font_scale"`
	DigestFingerprints   bool    `mapstructure:"digest_fingerprints"`
	Decoder              string  `mapstructure:"decoder"`

	Workers            int     `mapstructure:"workers"`
	MemoryEntries      int     `mapstructure:"memory_entries"`
	FailureMemoEntries int     `mapstructure:"failure_memo_entries"`
	MemoryLimit        int64   `mapstructure:"memory_limit"`
	MemoryRatio        float64 `mapstructure:"memory_ratio"`

	Listen         string `mapstructure:"listen"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	SortBy    string `mapstructure:"sort_by"`
	SortOrder string `mapstructure:"sort_order"`
}

// Dir returns the configuration directory (~/.config/thumbnail-engine).
func Dir() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", ".thumbnail-engine")
	}
	return filepath.Join(home, ".config", "thumbnail-engine")
}

// DefaultCacheDir follows the freedesktop.org thumbnail location:
// $XDG_CACHE_HOME/thumbnails, falling back to ~/.cache/thumbnails.
func DefaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "thumbnails")
	}
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), "thumbnails")
	}
	return filepath.Join(home, ".cache", "thumbnails")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:             DefaultCacheDir(),
		DatabasePath:         filepath.Join(Dir(), "thumbnails.db"),
		Backend:              BackendDatabase,
		ThumbnailSize:        DefaultThumbnailSize,
		PreloadMode:          "smart",
		PreloadCap:           DefaultPreloadCap,
		PreloadFullDirectory: false,
		ViewportWindow:       8,
		DisableThumbnails:    false,
		FilenameOnly:         false,
		FilenameFontScale:    1.0,
		DigestFingerprints:   false,
		Decoder:              DecoderImaging,
		Workers:              0,
		MemoryEntries:        512,
		FailureMemoEntries:   1024,
		MemoryLimit:          0,
		MemoryRatio:          0.85,
		Listen:               "127.0.0.1:8089",
		MetricsEnabled:       true,
		LogLevel:             "info",
		LogFormat:            "console",
		SortBy:               "name",
		SortOrder:            "asc",
	}
}

// SetDefaults registers every default on v so that environment variables and
// bound flags resolve for every key.
func SetDefaults(v *viper.Viper) {
	cfg := DefaultConfig()
	v.SetDefault("cache_dir", cfg.CacheDir)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("thumbnail_size", cfg.ThumbnailSize)
	v.SetDefault("preload_mode", cfg.PreloadMode)
	v.SetDefault("preload_cap", cfg.PreloadCap)
	v.SetDefault("preload_full_directory", cfg.PreloadFullDirectory)
	v.SetDefault("viewport_window", cfg.ViewportWindow)
	v.SetDefault("disable_thumbnails", cfg.DisableThumbnails)
	v.SetDefault("filename_only", cfg.FilenameOnly)
	v.SetDefault("filename_font_scale", cfg.FilenameFontScale)
	v.SetDefault("digest_fingerprints", cfg.DigestFingerprints)
	v.SetDefault("decoder", cfg.Decoder)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("memory_entries", cfg.MemoryEntries)
	v.SetDefault("failure_memo_entries", cfg.FailureMemoEntries)
	v.SetDefault("memory_limit", cfg.MemoryLimit)
	v.SetDefault("memory_ratio", cfg.MemoryRatio)
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("metrics_enabled", cfg.MetricsEnabled)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("sort_by", cfg.SortBy)
	v.SetDefault("sort_order", cfg.SortOrder)
}

// Load resolves configuration from defaults, the config file, THUMBS_*
// environment variables and any flags already bound to v, in increasing
// order of precedence. An empty cfgFile searches ~/.config/thumbnail-engine
// and the working directory for config.yaml; a missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ClampThumbnailSize limits size to [MinThumbnailSize, MaxThumbnailSize].
// Zero or negative sizes fall back to the default.
func ClampThumbnailSize(size int) int {
	switch {
	case size <= 0:
		return DefaultThumbnailSize
	case size < MinThumbnailSize:
		return MinThumbnailSize
	case size > MaxThumbnailSize:
		return MaxThumbnailSize
	default:
		return size
	}
}

// Validate normalizes cfg in place and rejects values that cannot be used.
func (c *Config) Validate() error {
	c.ThumbnailSize = ClampThumbnailSize(c.ThumbnailSize)

	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendFile, BackendDatabase, BackendNone:
	default:
		return fmt.Errorf("%w: backend %q (want %s, %s or %s)", ErrInvalid, c.Backend, BackendFile, BackendDatabase, BackendNone)
	}

	c.PreloadMode = strings.ToLower(strings.TrimSpace(c.PreloadMode))
	switch c.PreloadMode {
	case "normal", "dynamic", "smart":
	default:
		return fmt.Errorf("%w: preload_mode %q (want normal, dynamic or smart)", ErrInvalid, c.PreloadMode)
	}

	c.Decoder = strings.ToLower(strings.TrimSpace(c.Decoder))
	switch c.Decoder {
	case DecoderImaging, DecoderVips:
	default:
		return fmt.Errorf("%w: decoder %q", ErrInvalid, c.Decoder)
	}

	switch c.SortBy {
	case "name", "date", "size":
	default:
		return fmt.Errorf("%w: sort_by %q", ErrInvalid, c.SortBy)
	}
	switch c.SortOrder {
	case "asc", "desc":
	default:
		return fmt.Errorf("%w: sort_order %q", ErrInvalid, c.SortOrder)
	}

	if c.ViewportWindow < 0 {
		c.ViewportWindow = 0
	}
	if c.PreloadCap < 0 {
		c.PreloadCap = 0
	}
	if c.MemoryEntries < 0 {
		c.MemoryEntries = 0
	}
	if c.FailureMemoEntries <= 0 {
		c.FailureMemoEntries = DefaultConfig().FailureMemoEntries
	}
	if c.FilenameFontScale <= 0 {
		c.FilenameFontScale = 1.0
	}

	if c.Backend == BackendFile && c.CacheDir == "" {
		return fmt.Errorf("%w: cache_dir is required for the file backend", ErrInvalid)
	}
	if c.Backend == BackendDatabase && c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path is required for the database backend", ErrInvalid)
	}

	var err error
	if c.CacheDir, err = homedir.Expand(c.CacheDir); err != nil {
		return fmt.Errorf("%w: cache_dir: %v", ErrInvalid, err)
	}
	if c.DatabasePath, err = homedir.Expand(c.DatabasePath); err != nil {
		return fmt.Errorf("%w: database_path: %v", ErrInvalid, err)
	}

	return nil
}
