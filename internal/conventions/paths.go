package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default preload data directory name (relative to home).
	DefaultDataDir = ".preload"
	// DBFile is the run history database filename.
	DBFile = "preload.db"
)

// DBPath returns the run history database path inside a home directory.
func DBPath(home string) string {
	return filepath.Join(home, DefaultDataDir, DBFile)
}
