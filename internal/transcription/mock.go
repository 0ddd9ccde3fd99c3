package transcription

import (
	"context"
	"fmt"
	"path/filepath"

	"voice-scribe-go/internal/types"
)

// Mock returns a deterministic transcript per file. Enabled with USE_MOCK_TRANSCRIBE=true.
type Mock struct{}

func (Mock) Transcribe(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", types.TranscriptionError("transcription.mock", err)
	}
	if err := checkPlayable(path); err != nil {
		return "", types.TranscriptionError("transcription.mock", err)
	}
	return fmt.Sprintf("MOCK TRANSCRIPT: %s", filepath.Base(path)), nil
}
