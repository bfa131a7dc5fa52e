package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"thumbnail-engine/internal/config"
	"thumbnail-engine/internal/logging"
	"thumbnail-engine/internal/memory"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LogStart prints the banner and the system information section.
func LogStart() {
	printBanner()
	logSystemInfo()
}

// LogConfig logs the resolved configuration.
func LogConfig(cfg *config.Config, cfgFile string) {
	section("CONFIGURATION")

	if cfgFile == "" {
		cfgFile = "(none)"
	}
	logging.Info("  Config file:         %s", cfgFile)
	logging.Info("  Backend:             %s", cfg.Backend)
	switch cfg.Backend {
	case config.BackendNone:
	case config.BackendDatabase:
		logging.Info("  Database:            %s", cfg.DatabasePath)
	default:
		logging.Info("  Cache directory:     %s", cfg.CacheDir)
	}
	logging.Info("  Thumbnail size:      %d", cfg.ThumbnailSize)
	logging.Info("  Thumbnails:          %s", enabledString(!cfg.DisableThumbnails))
	logging.Info("  Preload mode:        %s (cap %d, window %d, full directory %v)",
		cfg.PreloadMode, cfg.PreloadCap, cfg.ViewportWindow, cfg.PreloadFullDirectory)
	logging.Info("  Decoder:             %s", cfg.Decoder)
	logging.Info("  Filename labels:     %v", cfg.FilenameOnly)
	logging.Info("  Digest fingerprints: %v", cfg.DigestFingerprints)
	logging.Info("  Memory cache:        %d entries", cfg.MemoryEntries)
	logging.Info("  Sort:                %s %s", cfg.SortBy, cfg.SortOrder)
	logging.Info("  Log level:           %s", logging.GetLevel())

	workers := cfg.Workers
	if workers <= 0 {
		logging.Info("  Workers:             auto (%d CPUs)", runtime.NumCPU())
	} else {
		logging.Info("  Workers:             %d", workers)
	}
}

// PrepareStorage makes sure the directory that will hold the cache exists
// and is writable.
func PrepareStorage(cfg *config.Config) error {
	section("STORAGE SETUP")

	if cfg.Backend == config.BackendNone {
		logging.Info("  Thumbnail cache disabled; nothing is stored")
		return nil
	}

	dir := cfg.CacheDir
	name := "cache"
	if cfg.Backend == config.BackendDatabase {
		dir = filepath.Dir(cfg.DatabasePath)
		name = "database"
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s directory path: %w", name, err)
	}
	logging.Info("  %s directory (absolute): %s", strings.ToUpper(name[:1])+name[1:], dir)

	if err := ensureDirectory(dir, name); err != nil {
		return fmt.Errorf("%s directory error: %w", name, err)
	}

	logging.Debug("  Testing %s directory write access...", name)
	if err := testWriteAccess(dir); err != nil {
		return fmt.Errorf("%s directory is not writable: %w", name, err)
	}
	logging.Info("  [OK] %s directory is writable", strings.ToUpper(name[:1])+name[1:])
	return nil
}

// LogMemoryConfig logs how GOMEMLIMIT was configured.
func LogMemoryConfig(res memory.ConfigResult) {
	if !res.Configured {
		logging.Debug("  Memory limit: not configured")
		return
	}
	if res.ContainerLimit > 0 {
		logging.Info("  Memory limit: %s of %s (%.0f%%, from %s)",
			memory.FormatBytes(res.GoMemLimit), memory.FormatBytes(res.ContainerLimit), res.Ratio*100, res.Source)
		return
	}
	logging.Info("  Memory limit: %s (from %s)", memory.FormatBytes(res.GoMemLimit), res.Source)
}

// LogEngineInit logs engine initialization
func LogEngineInit(duration time.Duration) {
	section("ENGINE INITIALIZATION")
	logging.Info("  [OK] Engine initialized in %v", duration)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks, logThumbnailFetches bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF")
	}
	if logThumbnailFetches {
		logging.Info("    Thumbnail fetch logging: ON")
	} else {
		logging.Info("    Thumbnail fetch logging: debug level only")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Listen          string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(cfg ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", cfg.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://%s/api/thumbnails", cfg.Listen)
	logging.Info("    Events:        http://%s/api/thumbnails/events", cfg.Listen)
	if cfg.MetricsEnabled {
		logging.Info("    Metrics:       http://%s/metrics", cfg.Listen)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func printBanner() {
	banner := `
------------------------------------------------------------
  _____ _                     _                 _ _
 |_   _| |__  _   _ _ __ ___ | |__  _ __   __ _(_) |___
   | | | '_ \| | | | '_ ' _ \| '_ \| '_ \ / _' | | / __|
   | | | | | | |_| | | | | | | |_) | | | | (_| | | \__ \
   |_| |_| |_|\__,_|_| |_| |_|_.__/|_| |_|\__,_|_|_|___/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
