package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/media_downloader/internal/media"
)

func line(text string) Line {
	return Line{Stream: Stdout, Text: text, At: time.Unix(1700000000, 0)}
}

func kinds(events []media.ProgressEvent) []media.EventKind {
	out := make([]media.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}

	return out
}

func TestDownloadParser(t *testing.T) {
	p := NewDownloadParser("op-1")

	tests := []struct {
		name    string
		text    string
		kinds   []media.EventKind
		percent string
	}{
		{
			name:    "percentage token",
			text:    "download 45.2% of 10MB",
			kinds:   []media.EventKind{media.EventPercent, media.EventStatusLine},
			percent: "45.2%",
		},
		{
			name:    "integer percentage",
			text:    "[download] 100% of 3.12MiB in 00:00:02",
			kinds:   []media.EventKind{media.EventPercent, media.EventStatusLine},
			percent: "100%",
		},
		{
			name:  "no percentage still forwards the line",
			text:  "[youtube] abc: Downloading webpage",
			kinds: []media.EventKind{media.EventStatusLine},
		},
		{
			name:  "blank line",
			text:  "   ",
			kinds: []media.EventKind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := p.Parse(line(tt.text))
			assert.Equal(t, tt.kinds, kinds(events))

			for _, e := range events {
				assert.Equal(t, "op-1", e.OperationID)
				assert.Equal(t, time.Unix(1700000000, 0), e.Timestamp)

				if e.Kind == media.EventPercent {
					assert.Equal(t, tt.percent, e.Payload)
				}
			}
		})
	}
}

func TestConvertParser_Duration(t *testing.T) {
	p := NewConvertParser("op-2")

	events := p.Parse(line("  Duration: 00:01:30.50, start: 0.000000, bitrate: 1205 kb/s"))
	require.Equal(t, []media.EventKind{media.EventDurationKnown, media.EventStatusLine}, kinds(events))

	want := 90*time.Second + 50*time.Millisecond
	assert.Equal(t, want, events[0].Duration)
	assert.Equal(t, want, p.Duration())

	// a second header, e.g. from another input, is ignored
	events = p.Parse(line("  Duration: 00:05:00.00, start: 0.000000"))
	assert.Equal(t, []media.EventKind{media.EventStatusLine}, kinds(events))
	assert.Equal(t, want, p.Duration())
}

func TestConvertParser_ZeroDurationIsParsedOnce(t *testing.T) {
	p := NewConvertParser("op-5")

	events := p.Parse(line("  Duration: 00:00:00.00, start: 0.000000"))
	require.Equal(t, []media.EventKind{media.EventDurationKnown, media.EventStatusLine}, kinds(events))
	assert.Equal(t, "0s", events[0].Payload)

	events = p.Parse(line("  Duration: 00:01:00.00, start: 0.000000"))
	assert.Equal(t, []media.EventKind{media.EventStatusLine}, kinds(events))
	assert.Zero(t, p.Duration())

	// no percentage can be computed against a zero duration
	events = p.Parse(line("size=1kB time=00:00:05.00 bitrate=1.0kbits/s"))
	assert.Equal(t, []media.EventKind{media.EventStatusLine}, kinds(events))
}

func TestConvertParser_ExplicitProgress(t *testing.T) {
	p := NewConvertParser("op-3")

	events := p.Parse(line("Progress: 42.50%"))
	require.Equal(t, []media.EventKind{media.EventPercent, media.EventStatusLine}, kinds(events))
	assert.Equal(t, "42.50%", events[0].Payload)

	// the marker needs a decimal part
	events = p.Parse(line("Progress: 42%"))
	assert.Equal(t, []media.EventKind{media.EventStatusLine}, kinds(events))
}

func TestConvertParser_ElapsedTime(t *testing.T) {
	p := NewConvertParser("op-4")

	stats := "frame= 1200 fps=240 q=28.0 size=    2048kB time=00:00:30.000 bitrate= 559.2kbits/s speed=5.99x"

	// without a known duration there is nothing to compute
	assert.Equal(t, []media.EventKind{media.EventStatusLine}, kinds(p.Parse(line(stats))))

	p.Parse(line("Duration: 00:02:00.00, start: 0.000000"))

	events := p.Parse(line(stats))
	require.Equal(t, []media.EventKind{media.EventPercent, media.EventStatusLine}, kinds(events))
	assert.Equal(t, "25.0%", events[0].Payload)

	events = p.Parse(line("size=    8192kB time=00:02:05.000 bitrate= 559.2kbits/s"))
	assert.Equal(t, "100.0%", events[0].Payload)
}

func TestParsersImplementParser(t *testing.T) {
	var _ Parser = NewDownloadParser("")
	var _ Parser = NewConvertParser("")
}
