package version

// Version is the current version of webdrop and the relay. Release builds
// set it with:
//
//	go build -ldflags="-X 'github.com/BioHazard786/webdrop/internal/version.Version=v1.0.0'"
var Version = "dev"
