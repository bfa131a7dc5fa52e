package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"thumbnail-engine/internal/engine"
	"thumbnail-engine/internal/generation"
)

type generateOptions struct {
	mode    string
	cap     int
	active  int
	all     bool
	noBar   bool
	verbose bool
}

// generateSummary counts deliveries of one generate run.
type generateSummary struct {
	Entries   int
	Submitted int
	Generated int64
	Cached    int64
	Failed    int64
	Cancelled bool
	Duration  time.Duration
}

func newGenerateCmd(a *app) *cobra.Command {
	opts := generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <dir>",
		Short: "Create thumbnails for every image in a directory",
		Long: `Lists dir, requests thumbnails the way the viewer would and waits
until every one is delivered. Thumbnails already in the cache are reused.
Ctrl+C interrupts outstanding work.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			sum, err := a.generate(ctx, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			printGenerateSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "normal", "preload mode (normal, dynamic, smart)")
	cmd.Flags().IntVar(&opts.cap, "cap", 0, "preload cap (0 = configured value)")
	cmd.Flags().IntVar(&opts.active, "active", 0, "index of the active entry")
	cmd.Flags().BoolVar(&opts.all, "all", true, "ignore the cap and plan the whole directory")
	cmd.Flags().BoolVar(&opts.noBar, "no-progress", false, "disable the progress bar")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print every delivery")

	return cmd
}

func (a *app) generate(ctx context.Context, dir string, opts generateOptions, out, errOut io.Writer) (generateSummary, error) {
	start := time.Now()
	sum := generateSummary{}

	cfg := *a.cfg
	if opts.all {
		cfg.PreloadFullDirectory = true
	}

	var (
		generated, cached, failed, delivered atomic.Int64
		bar                                  atomic.Pointer[progressbar.ProgressBar]
		notify                               = make(chan struct{}, 1)
	)

	sink := func(d engine.Delivery) {
		switch {
		case d.Placeholder:
			failed.Add(1)
		case d.Status == generation.StatusCacheHit.String():
			cached.Add(1)
		default:
			generated.Add(1)
		}
		if opts.verbose {
			fmt.Fprintf(out, "%-10s %s\n", d.Status, d.Path)
		}
		n := delivered.Add(1)
		if b := bar.Load(); b != nil {
			_ = b.Set(int(n))
		}
		select {
		case notify <- struct{}{}:
		default:
		}
	}

	collect := func() generateSummary {
		sum.Generated = generated.Load()
		sum.Cached = cached.Load()
		sum.Failed = failed.Load()
		sum.Duration = time.Since(start)
		return sum
	}

	eng, err := engine.New(ctx, &cfg, engine.Deps{Sink: sink})
	if err != nil {
		return sum, err
	}
	defer eng.Close()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return sum, err
	}

	batch, err := eng.RequestThumbnails(ctx, abs, opts.active, opts.mode, opts.cap)
	if err != nil {
		return sum, err
	}
	sum.Entries = len(batch.Entries)
	sum.Submitted = batch.Summary.Submitted

	if !opts.noBar && sum.Submitted > 0 {
		b := newProgressBar(errOut, sum.Submitted)
		bar.Store(b)
		_ = b.Set(int(delivered.Load()))
	}

	for delivered.Load() < int64(sum.Submitted) {
		select {
		case <-notify:
		case <-ctx.Done():
			eng.Interrupt()
			if b := bar.Load(); b != nil {
				_ = b.Exit()
				fmt.Fprintln(errOut)
			}
			sum.Cancelled = true
			return collect(), nil
		}
	}

	if b := bar.Load(); b != nil {
		_ = b.Finish()
		fmt.Fprintln(errOut)
	}
	return collect(), nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Thumbnails"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printGenerateSummary(w io.Writer, s generateSummary) {
	if s.Cancelled {
		fmt.Fprintln(w, "Interrupted.")
	}
	fmt.Fprintf(w, "%d images, %d requested: %d generated, %d from cache, %d failed in %s\n",
		s.Entries, s.Submitted, s.Generated, s.Cached, s.Failed, s.Duration.Round(time.Millisecond))
}
