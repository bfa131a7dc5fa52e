package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/logging"
)

// app carries state shared by the subcommands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

// NewRootCmd builds the command tree. Each call gets its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "thumbnail-engine",
		Short: "Thumbnail cache and background generation service",
		Long: `thumbnail-engine creates, caches and serves thumbnails for image
directories. Thumbnails are kept either in the freedesktop.org thumbnail
directory or in a SQLite database and are regenerated when the source
image changes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ~/.config/thumbnail-engine/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("backend", config.BackendDatabase, "cache backend (file, database, none)")
	flags.String("cache-dir", config.DefaultCacheDir(), "thumbnail directory for the file backend")
	flags.String("database", "", "database path for the database backend")
	flags.Int("size", config.DefaultThumbnailSize, "thumbnail size in pixels")
	flags.Int("workers", 0, "generation workers (0 = number of CPUs)")
	flags.String("decoder", config.DecoderImaging, "image decoder (imaging, vips)")

	a.bind("log_level", flags.Lookup("log-level"))
	a.bind("log_format", flags.Lookup("log-format"))
	a.bind("backend", flags.Lookup("backend"))
	a.bind("cache_dir", flags.Lookup("cache-dir"))
	a.bind("database_path", flags.Lookup("database"))
	a.bind("thumbnail_size", flags.Lookup("size"))
	a.bind("workers", flags.Lookup("workers"))
	a.bind("decoder", flags.Lookup("decoder"))

	rootCmd.AddCommand(
		newServeCmd(a),
		newGenerateCmd(a),
		newCleanCmd(a),
		newEraseCmd(a),
		newStatsCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("cli: bind %s: %v", key, err))
	}
}

func (a *app) initConfig() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg

	return logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
}
