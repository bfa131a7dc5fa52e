// Package directory lists the images of a directory in the order the viewer
// shows them. The engine only depends on the [Index] interface; [Lister] is
// the filesystem implementation used by the server and the CLI.
package directory
