// Package cli implements the thumbnail-engine command line.
//
// Commands:
//   - serve: HTTP API with an event stream of delivered thumbnails
//   - generate <dir>: fill the cache for one directory with a progress bar
//   - clean: drop entries whose source image changed or disappeared
//   - erase: delete every entry (asks for confirmation unless --yes)
//   - stats: cache size and entry count
//   - version: build information
//
// Every command reads configuration through [config.Load], so flags,
// THUMBS_* environment variables and the config file apply uniformly.
package cli
