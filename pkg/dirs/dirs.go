package dirs

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "bilitool"
	wbiCacheFile   = "wbi_cache.json"
	DefaultCookie  = "cookies.txt"
	DefaultBVList  = "bvid.txt"
	AudioFolder    = "audio"
	ReportsFolder  = "reports"
	CommentsFolder = "comments"
	LiveFolder     = "live"

	// ReportImagesFolder sits inside ReportsFolder.
	ReportImagesFolder = "images"
)

// GetDataDir returns the path to the data directory, creating it if it doesn't exist.
// A non-empty override wins over the platform default.
func GetDataDir(override string) (string, error) {
	dataDir := override

	if dataDir == "" {
		configDir, err := os.UserConfigDir()
		if err == nil {
			dataDir = filepath.Join(configDir, appName)
		} else {
			// Fallback to executable location
			exePath, err := os.Executable()
			if err == nil {
				dataDir = filepath.Join(filepath.Dir(exePath), appName+"-data")
			}
		}
	}

	if dataDir == "" {
		return "", fmt.Errorf("failed to find data directory path")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// WbiCachePath is where the signing keys are persisted.
func WbiCachePath(dataDir string) string {
	return filepath.Join(dataDir, wbiCacheFile)
}

// GetSaveDirectory returns the directory where files should be saved,
// creating sub under the working directory when no custom directory is given.
func GetSaveDirectory(customSaveDirectory, sub string) (string, error) {
	dir := customSaveDirectory
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(cwd, sub)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}
