package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default fieldbot data directory name (relative to home).
	DefaultDataDir = ".fieldbot"
	// TasksDir is the subdirectory for task definition files.
	TasksDir = "tasks"

	// DBFile is the filename of the SQLite database inside the data directory.
	DBFile = "fieldbot.db"

	// DefaultBridgePort is the default port the dashboard bridge listens on.
	DefaultBridgePort = 8099
	// DefaultWebDriverURL is the default WebDriver endpoint of a local browser.
	DefaultWebDriverURL = "http://127.0.0.1:4444"
)

// DBPath returns the full path to the SQLite database file.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// TasksPath returns the directory task definition files are loaded from.
func TasksPath(dataDir string) string {
	return filepath.Join(dataDir, TasksDir)
}
