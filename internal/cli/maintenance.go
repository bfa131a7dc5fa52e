package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"thumbnail-engine/internal/cache"
	"thumbnail-engine/internal/maintenance"
	"thumbnail-engine/internal/memory"
	"thumbnail-engine/internal/startup"
)

// errNotConfirmed is returned when erase is declined or cannot be confirmed.
var errNotConfirmed = errors.New("erase not confirmed")

// openMaintainer opens the configured store without starting generation.
func (a *app) openMaintainer(ctx context.Context) (*maintenance.Maintainer, func(), error) {
	store, err := cache.Open(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s cache: %w", a.cfg.Backend, err)
	}
	return maintenance.New(store), func() { _ = store.Close() }, nil
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove thumbnails whose source image is gone or changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			m, closeStore, err := a.openMaintainer(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := m.Clean(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d entries, removed %d (%d errors) in %s\n",
				res.Scanned, res.Removed, res.Errors, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newEraseCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete every cached thumbnail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Erase all cached thumbnails?")
				if err != nil {
					return err
				}
				if !ok {
					return errNotConfirmed
				}
			}

			m, closeStore, err := a.openMaintainer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := m.EraseAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache erased.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question on an interactive terminal. Input that is
// not a terminal is refused so scripts have to pass --yes.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("%w: stdin is not a terminal, use --yes", errNotConfirmed)
	}

	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return isYes(line), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeStore, err := a.openMaintainer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := m.Report(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "Backend:  %s\n", report.Backend)
			fmt.Fprintf(out, "Location: %s\n", report.Location)
			fmt.Fprintf(out, "Entries:  %d\n", report.Entries)
			fmt.Fprintf(out, "Size:     %s\n", memory.FormatBytes(report.Bytes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// No config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "thumbnail-engine %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
			return nil
		},
	}
}
