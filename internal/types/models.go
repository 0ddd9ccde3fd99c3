package types

import "math"

// Segment is one time-bounded slice of an uploaded audio file on disk.
type Segment struct {
	Index         int    `json:"index"`
	Path          string `json:"path"`
	StartOffsetMs int64  `json:"start_offset_ms"`
	DurationMs    int64  `json:"duration_ms"`
}

// TranscriptionRecord is the unit streamed to the client for each transcribed segment.
type TranscriptionRecord struct {
	SegmentIndex int    `json:"segmentIndex"`
	Text         string `json:"text"`
	Percentage   int    `json:"percentage"`
}

// Percentage returns the progress value reported after segment index i of
// total. Only the last segment reports 100; rounding never lets an earlier
// one reach it.
func Percentage(i, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(i+1) / float64(total)))
	if i < total-1 && p >= 100 {
		p = 99
	}
	return p
}

// ErrorFrame terminates a stream that failed after it started.
type ErrorFrame struct {
	Error string `json:"error"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatDeltaChunk mirrors the partial completion shape relayed to the client:
// {"choices":[{"delta":{"content":"..."}}]}
type ChatDeltaChunk struct {
	Choices []ChatDeltaChoice `json:"choices"`
}

type ChatDeltaChoice struct {
	Delta ChatDelta `json:"delta"`
}

type ChatDelta struct {
	Content string `json:"content,omitempty"`
}

// Content concatenates the delta content of all choices.
func (c ChatDeltaChunk) Content() string {
	if len(c.Choices) == 1 {
		return c.Choices[0].Delta.Content
	}
	var s string
	for _, ch := range c.Choices {
		s += ch.Delta.Content
	}
	return s
}

// SplitResult is returned by /split
type SplitResult struct {
	Duration     float64  `json:"duration"`
	SegmentCount int      `json:"segmentCount"`
	SegmentPaths []string `json:"segmentPaths"`
}

// TranscribeResult is returned by /transcribe
type TranscribeResult struct {
	Transcription string `json:"transcription"`
	DurationMs    int64  `json:"-"`
}
