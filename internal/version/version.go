package version

// Version is the current version of the christmas-tree binaries.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/ernestchu/christmas-tree/internal/version.Version=v1.0.0'"
var Version = "dev"
