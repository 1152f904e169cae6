package progress

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/media_downloader/internal/media"
)

var (
	percentPattern         = regexp.MustCompile(`\d+(\.\d+)?%`)
	durationPattern        = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d+)`)
	explicitPercentPattern = regexp.MustCompile(`Progress: (\d+\.\d+)%`)
	elapsedPattern         = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d+)`)
)

// Parser extracts progress events from tool output. A Parser belongs to a
// single operation and is not safe for concurrent use.
type Parser interface {
	Parse(line Line) []media.ProgressEvent
}

// DownloadParser handles yt-dlp output.
type DownloadParser struct {
	operationID string
}

// NewDownloadParser creates a parser for the given download operation.
func NewDownloadParser(operationID string) *DownloadParser {
	return &DownloadParser{operationID: operationID}
}

// Parse emits a percent event for the first percentage token in the line,
// followed by the line itself as a status line. Blank lines yield nothing.
func (p *DownloadParser) Parse(line Line) []media.ProgressEvent {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil
	}

	var events []media.ProgressEvent

	if pct := percentPattern.FindString(text); pct != "" {
		events = append(events, p.event(media.EventPercent, pct, line.At))
	}

	return append(events, p.event(media.EventStatusLine, text, line.At))
}

func (p *DownloadParser) event(kind media.EventKind, payload string, at time.Time) media.ProgressEvent {
	return media.ProgressEvent{OperationID: p.operationID, Kind: kind, Payload: payload, Timestamp: at}
}

// ConvertParser handles ffmpeg output. It remembers the total duration
// reported in the input header and uses it to turn elapsed-time statistics
// into percentages.
type ConvertParser struct {
	operationID  string
	total        time.Duration
	durationSeen bool
}

// NewConvertParser creates a parser for the given conversion operation.
func NewConvertParser(operationID string) *ConvertParser {
	return &ConvertParser{operationID: operationID}
}

// Duration returns the total duration parsed so far, or zero.
func (p *ConvertParser) Duration() time.Duration {
	return p.total
}

// Parse handles one ffmpeg output line.
//
// Only the first Duration header of a run is honoured. An explicit
// "Progress: NN.NN%" marker wins over the computed percentage for the same line.
func (p *ConvertParser) Parse(line Line) []media.ProgressEvent {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil
	}

	var events []media.ProgressEvent

	if !p.durationSeen {
		if m := durationPattern.FindStringSubmatch(text); m != nil {
			p.durationSeen = true
			p.total = clockDuration(m[1:])

			ev := p.event(media.EventDurationKnown, p.total.String(), line.At)
			ev.Duration = p.total
			events = append(events, ev)
		}
	}

	if m := explicitPercentPattern.FindStringSubmatch(text); m != nil {
		events = append(events, p.event(media.EventPercent, m[1]+"%", line.At))
	} else if p.total > 0 {
		if m := elapsedPattern.FindStringSubmatch(text); m != nil {
			pct := float64(clockDuration(m[1:])) / float64(p.total) * 100
			events = append(events, p.event(media.EventPercent, fmt.Sprintf("%.1f%%", min(pct, 100)), line.At))
		}
	}

	return append(events, p.event(media.EventStatusLine, text, line.At))
}

func (p *ConvertParser) event(kind media.EventKind, payload string, at time.Time) media.ProgressEvent {
	return media.ProgressEvent{OperationID: p.operationID, Kind: kind, Payload: payload, Timestamp: at}
}

// clockDuration converts HH, MM, SS and a fractional part into a duration.
// The fractional digits are read as a millisecond count, as ffmpeg consumers
// traditionally do, so "00:01:00.50" is one minute and 50ms.
func clockDuration(parts []string) time.Duration {
	var n [4]int

	for i, s := range parts {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}

		n[i] = v
	}

	return time.Duration(n[0])*time.Hour +
		time.Duration(n[1])*time.Minute +
		time.Duration(n[2])*time.Second +
		time.Duration(n[3])*time.Millisecond
}
