package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/memory"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Errorf("Expected OS and Arch to be set, got %q/%q", info.OS, info.Arch)
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/thumbnails/request", "api/thumbnails"},
		{"/api/thumbnail", "api/thumbnail"},
		{"/api/cache/stats", "api/cache"},
		{"/healthz", "healthz"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getRouteGroup(tt.path); got != tt.want {
				t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetRoutes(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}

	r := mux.NewRouter()
	r.HandleFunc("/livez", noop).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/cache", noop).Methods(http.MethodDelete).Name("erase")
	r.HandleFunc("/anything", noop)

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error: %v", err)
	}

	want := []RouteInfo{
		{Method: http.MethodGet, Path: "/livez"},
		{Method: http.MethodHead, Path: "/livez"},
		{Method: http.MethodDelete, Path: "/api/cache", Name: "erase"},
		{Method: "*", Path: "/anything"},
	}
	if len(routes) != len(want) {
		t.Fatalf("Expected %d routes, got %d: %+v", len(want), len(routes), routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("route %d = %+v, want %+v", i, routes[i], want[i])
		}
	}
}

func TestPrepareStorage(t *testing.T) {
	t.Run("creates file cache directory", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Backend = config.BackendFile
		cfg.CacheDir = filepath.Join(t.TempDir(), "thumbnails")

		if err := PrepareStorage(cfg); err != nil {
			t.Fatalf("PrepareStorage() error: %v", err)
		}
		info, err := os.Stat(cfg.CacheDir)
		if err != nil || !info.IsDir() {
			t.Fatalf("Expected cache directory to exist, stat err: %v", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.CacheDir, ".write-test")); !os.IsNotExist(err) {
			t.Error("Expected write test file to be removed")
		}
	})

	t.Run("creates database parent", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Backend = config.BackendDatabase
		cfg.DatabasePath = filepath.Join(t.TempDir(), "nested", "thumbs.db")

		if err := PrepareStorage(cfg); err != nil {
			t.Fatalf("PrepareStorage() error: %v", err)
		}
		if _, err := os.Stat(filepath.Dir(cfg.DatabasePath)); err != nil {
			t.Errorf("Expected database directory to exist: %v", err)
		}
	})

	t.Run("nothing to prepare without a cache", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Backend = config.BackendNone
		cfg.CacheDir = filepath.Join(t.TempDir(), "unused")

		if err := PrepareStorage(cfg); err != nil {
			t.Fatalf("PrepareStorage() error: %v", err)
		}
		if _, err := os.Stat(cfg.CacheDir); !os.IsNotExist(err) {
			t.Error("Expected no cache directory to be created")
		}
	})

	t.Run("rejects a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := config.DefaultConfig()
		cfg.Backend = config.BackendFile
		cfg.CacheDir = file

		if err := PrepareStorage(cfg); err == nil {
			t.Error("Expected error when cache path is a file")
		}
	})
}

func TestLogHelpersDoNotPanic(_ *testing.T) {
	cfg := config.DefaultConfig()
	LogConfig(cfg, "")
	cfg.Backend = config.BackendFile
	cfg.Workers = 3
	LogConfig(cfg, "/etc/thumbs.yaml")

	LogMemoryConfig(memory.ConfigResult{})
	LogMemoryConfig(memory.ConfigResult{Configured: true, Source: "GOMEMLIMIT", GoMemLimit: 1 << 30})
	LogMemoryConfig(memory.ConfigResult{Configured: true, Source: "config", ContainerLimit: 2 << 30, GoMemLimit: 1 << 30, Ratio: 0.5})

	LogHTTPRoutes(mux.NewRouter(), false, true)
	LogServerStarted(ServerConfig{Listen: "127.0.0.1:8089"})
	LogShutdownInitiated("interrupt")
	LogShutdownStep("Closing engine")
	LogShutdownStepComplete("Engine closed")
	LogShutdownComplete()
}
