// Package version provides version information for silverbullet-notesync.
package version

// Version is the current version of silverbullet-notesync.
// It can be overridden at build time with:
//
//	go build -ldflags "-X github.com/boblangley/silverbullet-notesync/internal/version.Version=x.y.z"
var Version = "0.1.0"

// Name is the application name.
const Name = "silverbullet-notesync"
