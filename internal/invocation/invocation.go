// Package invocation turns download and conversion requests into concrete,
// typed command lines for the external tools.
package invocation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/media_downloader/internal/media"
)

const (
	DefaultYtDlp  = "yt-dlp"
	DefaultFFmpeg = "ffmpeg"

	DefaultDownloadTimeout = 10 * time.Minute

	dirPerm = 0755
)

const (
	singleTemplate   = "%(title)s.%(ext)s"
	playlistTemplate = "%(playlist_index)s - %(title)s.%(ext)s"
	playlistFlag     = "--yes-playlist"
)

// Spec is a fully resolved tool invocation. It is built once per operation and
// never modified afterwards.
type Spec struct {
	Executable string
	Args       []string
	Dir        string
	Timeout    time.Duration

	// Output is the destination directory for downloads and the output file for
	// conversions.
	Output   string
	Playlist bool
}

// Config holds the tool locations and limits used by the Builder.
type Config struct {
	YtDlpPath       string
	FFmpegPath      string
	DownloadDir     string // empty means the platform download directory
	DownloadTimeout time.Duration
	ConvertTimeout  time.Duration // zero disables the timeout
}

// Builder creates Specs for the download and conversion tools.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder, filling unset tool paths with their defaults.
func NewBuilder(cfg Config) *Builder {
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = DefaultYtDlp
	}

	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = DefaultFFmpeg
	}

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	return &Builder{cfg: cfg}
}

// Download builds the yt-dlp invocation for req. The output directory is
// created when it does not exist yet.
func (b *Builder) Download(req media.DownloadRequest) (Spec, error) {
	req = req.WithDefaults()

	dir, err := b.downloadDir(req.Destination)
	if err != nil {
		return Spec{}, err
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return Spec{}, fmt.Errorf("failed to create download directory %s: %w", dir, err)
	}

	playlist := IsPlaylist(req.URL)

	return Spec{
		Executable: b.cfg.YtDlpPath,
		Args:       DownloadArgs(req.URL, ParseFormat(req.Format), ParseResolution(req.Resolution), playlist, dir),
		Dir:        dir,
		Timeout:    b.cfg.DownloadTimeout,
		Output:     dir,
		Playlist:   playlist,
	}, nil
}

// Convert builds the ffmpeg invocation for req. The output file sits next to
// the input with its extension replaced by the requested format. Relative
// inputs are resolved against the current directory, since the tool runs from
// the input's directory.
func (b *Builder) Convert(req media.ConvertRequest) (Spec, error) {
	input, err := filepath.Abs(req.InputFilePath)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to resolve input file %s: %w", req.InputFilePath, err)
	}

	output := ConvertOutputPath(input, req.OutputFormat)

	return Spec{
		Executable: b.cfg.FFmpegPath,
		Args:       []string{"-i", input, output},
		Dir:        filepath.Dir(input),
		Timeout:    b.cfg.ConvertTimeout,
		Output:     output,
	}, nil
}

// downloadDir returns the absolute destination directory. The tool runs from
// it and also receives it in the output template, so a relative path would be
// applied twice.
func (b *Builder) downloadDir(destination string) (string, error) {
	dir := strings.TrimSpace(destination)
	if dir == "" {
		dir = b.cfg.DownloadDir
	}

	if dir == "" {
		return UserDownloadsDir()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve download directory %s: %w", dir, err)
	}

	return abs, nil
}

// DownloadArgs returns the ordered yt-dlp arguments for the given variant.
func DownloadArgs(url string, format Format, res Resolution, playlist bool, dir string) []string {
	template := singleTemplate
	if playlist {
		template = playlistTemplate
	}

	output := filepath.Join(dir, template)

	var args []string

	switch format {
	case FormatMP3:
		args = []string{"-x", "--audio-format", "mp3", url, "-o", output}
	case FormatMP4:
		args = []string{"-f", mp4Selector(res.Filter()), url, "-o", output}
	default:
		args = []string{"-f", "bestvideo+bestaudio/best", url, "-o", output}
	}

	if playlist {
		args = append(args, playlistFlag)
	}

	return args
}

func mp4Selector(filter string) string {
	if filter == "" {
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]"
	}

	return "bestvideo[ext=mp4][" + filter + "]+bestaudio[ext=m4a]/best[ext=mp4]"
}

// IsPlaylist reports whether a source URL points at a playlist.
func IsPlaylist(source string) bool {
	return strings.Contains(source, "list=") || strings.Contains(source, "playlist")
}

// ConvertOutputPath replaces the extension of input with format.
func ConvertOutputPath(input, format string) string {
	format = strings.TrimPrefix(strings.TrimSpace(format), ".")

	return strings.TrimSuffix(input, filepath.Ext(input)) + "." + format
}
