package notifier

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/media_downloader/internal/media"
)

// OutcomeMessage renders a finished operation for a chat notification.
func OutcomeMessage(kind media.Kind, source string, outcome media.Outcome, elapsed time.Duration) string {
	var b strings.Builder

	icon := "✅"
	if !outcome.Success {
		icon = "❌"
	}

	fmt.Fprintf(&b, "%s %s of %s %s after %s\n%s", icon, kind, source, outcome.State, elapsed.Round(time.Second), outcome.Message)

	if outcome.Success && outcome.ArtifactCount == 1 {
		if info, err := os.Stat(outcome.ArtifactPath); err == nil && !info.IsDir() {
			fmt.Fprintf(&b, " [%s]", humanize.Bytes(uint64(info.Size())))
		}
	}

	return b.String()
}
