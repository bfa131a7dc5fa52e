// Package startup handles build information and the startup and shutdown
// log sections of the serve command.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Lifecycle Logging
//
//   - [LogStart]: Banner and system information
//   - [LogConfig]: Resolved configuration
//   - [PrepareStorage]: Cache or database directory creation and write check
//   - [LogMemoryConfig]: Memory limit configuration
//   - [LogEngineInit]: Engine initialization timing
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated]: Graceful shutdown start
//   - [LogShutdownComplete]: Shutdown completion
//
// # Example Usage
//
//	startup.LogStart()
//	startup.LogConfig(cfg, cfgFile)
//	if err := startup.PrepareStorage(cfg); err != nil {
//	    return err
//	}
//	startup.LogMemoryConfig(memory.Configure(cfg.MemoryLimit, cfg.MemoryRatio))
//
//	// Build the engine and router...
//	startup.LogServerStarted(startup.ServerConfig{
//	    Listen:          cfg.Listen,
//	    MetricsEnabled:  cfg.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
package startup
