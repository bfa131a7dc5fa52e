// Command thumbnail-engine creates, caches and serves image thumbnails.
//
// # Application Lifecycle
//
// The serve command follows this sequence:
//
//  1. Configuration: defaults, config file, THUMBS_* environment variables and flags
//  2. Storage: creates the cache directory or database directory and checks write access
//  3. Memory Configuration: sets GOMEMLIMIT from configuration or the environment
//  4. Engine: opens the cache, starts the decode pool and the memory monitor
//  5. HTTP Server: registers routes and middleware and starts listening
//  6. Graceful Shutdown: on SIGINT/SIGTERM interrupts generation, stops the
//     server and closes the cache
//
// The generate, clean, erase and stats commands work on the same cache
// without starting a server.
package main

import "thumbnail-engine/internal/cli"

func main() {
	cli.Execute()
}
