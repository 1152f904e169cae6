// Package result turns a finished tool run into the outcome reported to the
// caller.
package result

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/italolelis/media_downloader/internal/media"
)

const (
	UnknownFile   = "Unknown file"
	UnknownFormat = "Unknown Format"

	DownloadFailedMessage = "Failed to download the media."
	ConvertFailedMessage  = "Failed to convert the media."
)

// temporaryExtensions are partial files the downloader leaves behind while
// working or after an interrupted run.
var temporaryExtensions = []string{".part", ".ytdl"}

var formatLabels = map[string]string{
	".mp3":  "MP3 (Audio)",
	".mp4":  "MP4 (Video)",
	".webm": "WEBM (Video)",
}

// FormatLabel returns the human-readable label for a file's extension.
func FormatLabel(path string) string {
	if label, ok := formatLabels[strings.ToLower(filepath.Ext(path))]; ok {
		return label
	}

	return UnknownFormat
}

// Listing records the files of a directory and their modification times.
type Listing map[string]time.Time

// Snapshot lists the regular files in dir. A missing directory is an empty
// listing.
func Snapshot(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Listing{}, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	listing := make(Listing, len(entries))

	for _, e := range entries {
		if e.IsDir() || isTemporary(e.Name()) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}

		listing[e.Name()] = info.ModTime()
	}

	return listing, nil
}

// NewArtifacts returns the full paths of files in dir that are new or were
// rewritten since before was taken, sorted by name.
func NewArtifacts(dir string, before Listing) ([]string, error) {
	after, err := Snapshot(dir)
	if err != nil {
		return nil, err
	}

	var artifacts []string

	for name, mod := range after {
		if prev, ok := before[name]; ok && prev.Equal(mod) {
			continue
		}

		artifacts = append(artifacts, filepath.Join(dir, name))
	}

	sort.Strings(artifacts)

	return artifacts, nil
}

func isTemporary(name string) bool {
	for _, ext := range temporaryExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}

	return false
}

// ClassifyDownload classifies a finished download. A non-zero exit fails
// without looking at any file. More than one artifact is a playlist; one
// artifact, or none, is a single item.
func ClassifyDownload(exitCode int, dir string, artifacts []string) media.Outcome {
	if exitCode != 0 {
		return media.Outcome{
			State:   media.StateFailed,
			Message: DownloadFailedMessage,
		}
	}

	if len(artifacts) > 1 {
		return media.Outcome{
			Success:       true,
			State:         media.StateSucceeded,
			Message:       fmt.Sprintf("Playlist downloaded successfully: %d files saved to %s", len(artifacts), dir),
			ArtifactPath:  dir,
			ArtifactCount: len(artifacts),
		}
	}

	path := UnknownFile
	if len(artifacts) == 1 {
		path = artifacts[0]
	}

	label := FormatLabel(path)

	return media.Outcome{
		Success:       true,
		State:         media.StateSucceeded,
		Message:       fmt.Sprintf("Downloaded successfully: %s (%s)", path, label),
		ArtifactPath:  path,
		ArtifactCount: len(artifacts),
		Label:         label,
	}
}

// ClassifyConvert classifies a finished conversion. The output path is known
// up front so no directory inspection is needed.
func ClassifyConvert(exitCode int, outputPath string) media.Outcome {
	if exitCode != 0 {
		return media.Outcome{
			State:   media.StateFailed,
			Message: ConvertFailedMessage,
		}
	}

	return media.Outcome{
		Success:       true,
		State:         media.StateSucceeded,
		Message:       "Converted successfully: " + outputPath,
		ArtifactPath:  outputPath,
		ArtifactCount: 1,
		Label:         FormatLabel(outputPath),
	}
}
