package invocation

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const androidDownloads = "/sdcard/Download"

// UserDownloadsDir returns the platform download folder: /sdcard/Download on
// Android, ~/Downloads everywhere else.
func UserDownloadsDir() (string, error) {
	if runtime.GOOS == "android" {
		return androidDownloads, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return filepath.Join(home, "Downloads"), nil
}
