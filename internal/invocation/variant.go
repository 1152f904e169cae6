package invocation

import (
	"strconv"
	"strings"
)

// Format is the requested output container.
type Format int

const (
	FormatGeneric Format = iota
	FormatMP3
	FormatMP4
)

// ParseFormat maps a request format onto a known template; unknown values use
// the generic best-video+best-audio selection.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mp3":
		return FormatMP3
	case "mp4":
		return FormatMP4
	default:
		return FormatGeneric
	}
}

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatMP4:
		return "mp4"
	default:
		return "generic"
	}
}

// Resolution is a height ceiling for video downloads. Zero means no ceiling.
type Resolution int

const ResolutionBest Resolution = 0

var resolutions = map[string]Resolution{
	"2160p": 2160,
	"1440p": 1440,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
}

// ParseResolution maps a resolution hint such as "720p" to its height. Any
// other value, "best" included, means no ceiling.
func ParseResolution(s string) Resolution {
	return resolutions[strings.ToLower(strings.TrimSpace(s))]
}

// Filter returns the yt-dlp format filter, or "" when there is no ceiling.
func (r Resolution) Filter() string {
	if r == ResolutionBest {
		return ""
	}

	return "height<=" + strconv.Itoa(int(r))
}
