package model

// VersionInfo is the build identity stamped into the server binary and
// reported by its version flag.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}
