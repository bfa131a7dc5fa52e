package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"thumbnail-engine/internal/config"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// setupImages creates three images and one unreadable file.
func setupImages(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 40, 30)
	writePNG(t, filepath.Join(dir, "b.png"), 30, 40)
	writePNG(t, filepath.Join(dir, "c.png"), 20, 20)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

// run executes the command tree with args against a file cache in cacheDir.
func run(t *testing.T, cacheDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	base := []string{"--backend", config.BackendFile, "--cache-dir", cacheDir, "--log-level", "error"}
	cmd.SetArgs(append(base, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out, "thumbnail-engine dev") {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := run(t, t.TempDir(), "--decoder", "bogus", "stats"); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
}

func TestGenerateStatsCleanErase(t *testing.T) {
	images := setupImages(t)
	cacheDir := t.TempDir()

	out, err := run(t, cacheDir, "generate", "--no-progress", images)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if !strings.Contains(out, "4 images, 4 requested: 3 generated, 0 from cache, 1 failed") {
		t.Errorf("Unexpected generate output %q", out)
	}

	out, err = run(t, cacheDir, "generate", "--no-progress", images)
	if err != nil {
		t.Fatalf("second generate error: %v", err)
	}
	if !strings.Contains(out, "0 generated, 3 from cache, 1 failed") {
		t.Errorf("Expected cache hits on second run, got %q", out)
	}

	out, err = run(t, cacheDir, "stats")
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if !strings.Contains(out, "Entries:  3") || !strings.Contains(out, "Backend:  file") {
		t.Errorf("Unexpected stats output %q", out)
	}

	if err := os.Remove(filepath.Join(images, "c.png")); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, cacheDir, "clean")
	if err != nil {
		t.Fatalf("clean error: %v", err)
	}
	if !strings.Contains(out, "Scanned 3 entries, removed 1") {
		t.Errorf("Unexpected clean output %q", out)
	}

	if _, err := run(t, cacheDir, "erase"); !errors.Is(err, errNotConfirmed) {
		t.Errorf("Expected erase without --yes to be refused, got %v", err)
	}

	if _, err := run(t, cacheDir, "erase", "--yes"); err != nil {
		t.Fatalf("erase error: %v", err)
	}
	out, err = run(t, cacheDir, "stats", "--json")
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if !strings.Contains(out, `"entries": 0`) {
		t.Errorf("Expected empty cache after erase, got %q", out)
	}
}

func TestGenerateMissingDirectory(t *testing.T) {
	_, err := run(t, t.TempDir(), "generate", "--no-progress", filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestIsYes(t *testing.T) {
	tests := map[string]bool{
		"y\n":   true,
		"YES":   true,
		" yes ": true,
		"n":     false,
		"":      false,
		"yep":   false,
	}
	for in, want := range tests {
		if got := isYes(in); got != want {
			t.Errorf("isYes(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServe(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendFile
	cfg.CacheDir = t.TempDir()
	cfg.Listen = "127.0.0.1:0"
	cfg.LogLevel = "error"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	a := &app{v: viper.New(), cfg: cfg}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, serveOptions{}, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	for _, path := range []string{"/livez", "/api/thumbnails/status", "/api/cache/stats"} {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d", path, resp.StatusCode)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(shutdownTimeout):
		t.Fatal("server did not shut down")
	}
}
