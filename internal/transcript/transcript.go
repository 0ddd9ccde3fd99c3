// Package transcript folds streamed records into the final transcript.
package transcript

import (
	"fmt"
	"strings"

	"voice-scribe-go/internal/types"
)

// Builder accumulates records in arrival order. Arrival order must equal
// segment order; Add rejects anything else.
type Builder struct {
	records []types.TranscriptionRecord
}

func (b *Builder) Add(r types.TranscriptionRecord) error {
	if b.Complete() {
		return fmt.Errorf("transcript: segment %d arrived after completion", r.SegmentIndex)
	}
	if r.SegmentIndex != len(b.records) {
		return fmt.Errorf("transcript: got segment %d, expected %d", r.SegmentIndex, len(b.records))
	}
	if n := len(b.records); n > 0 && r.Percentage < b.records[n-1].Percentage {
		return fmt.Errorf("transcript: percentage went backwards at segment %d", r.SegmentIndex)
	}
	if r.Percentage < 0 || r.Percentage > 100 {
		return fmt.Errorf("transcript: percentage %d out of range", r.Percentage)
	}
	b.records = append(b.records, r)
	return nil
}

// Percentage is the progress reported by the latest record.
func (b *Builder) Percentage() int {
	if len(b.records) == 0 {
		return 0
	}
	return b.records[len(b.records)-1].Percentage
}

// Complete reports whether the final record has arrived.
func (b *Builder) Complete() bool {
	return b.Percentage() == 100
}

func (b *Builder) Len() int { return len(b.records) }

func (b *Builder) Records() []types.TranscriptionRecord {
	out := make([]types.TranscriptionRecord, len(b.records))
	copy(out, b.records)
	return out
}

// Text joins the trimmed segment texts with single spaces.
func (b *Builder) Text() string {
	return Join(b.records)
}

// Join space-joins record texts in the given order, trimming each.
func Join(records []types.TranscriptionRecord) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, strings.TrimSpace(r.Text))
	}
	return strings.Join(parts, " ")
}
