package parser

import (
	"fmt"
	"math"
	"strings"
)

// Segment is one speaker turn of a call.
type Segment struct {
	Speaker string   `json:"speaker"`
	Text    string   `json:"text"`
	Start   *float64 `json:"start"`
}

// renderTranscript joins turns into the timestamped text sent for extraction.
func renderTranscript(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.Start != nil && *seg.Start >= 0 {
			total := int(math.Floor(*seg.Start))
			fmt.Fprintf(&b, "[%02d:%02d] ", total/60, total%60)
		}
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = "Unknown"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
