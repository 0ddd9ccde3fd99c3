// Package processor transcribes a whole upload in one service call, without splitting.
package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/media"
	"voice-scribe-go/internal/transcription"
	"voice-scribe-go/internal/types"
)

type Processor struct {
	dir         string
	transcriber transcription.Transcriber
	log         *logger.Logger
}

// New returns a Processor that stages uploads in dir.
func New(dir string, t transcription.Transcriber, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.New()
	}
	return &Processor{dir: dir, transcriber: t, log: log}
}

// TranscribeUpload stores the upload under a unique name, transcribes it and
// removes it again regardless of the outcome.
func (p *Processor) TranscribeUpload(ctx context.Context, up media.Upload) (types.TranscribeResult, error) {
	log := logger.FromContext(ctx, p.log).WithField("component", "processor")
	start := time.Now()
	res := types.TranscribeResult{}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return res, types.TranscriptionError("processor.stage", err)
	}
	path := filepath.Join(p.dir, "whole_"+uuid.New().String()+extOf(up.Filename))
	defer os.Remove(path)

	if err := stage(path, up.Body); err != nil {
		return res, types.TranscriptionError("processor.stage", err)
	}

	text, err := p.transcriber.Transcribe(ctx, path)
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		log.WithField("duration_ms", res.DurationMs).WithError(err).Warn("whole file transcription failed")
		return res, err
	}
	res.Transcription = text
	log.WithField("duration_ms", res.DurationMs).Info("whole file transcribed")
	return res, nil
}

func stage(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if r != nil {
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return fmt.Errorf("write: %w", err)
		}
	}
	return f.Close()
}

// extOf keeps a short alphanumeric extension so the service can infer the
// format; mp3 is assumed otherwise.
func extOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ".mp3"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".mp3"
		}
	}
	return ext
}
