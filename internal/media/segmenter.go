// Package media splits uploaded audio into fixed windows using ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/types"
)

// Window is the fixed segment length.
const Window = 300 * time.Second

// Upload is an audio file received from a client.
type Upload struct {
	Filename string
	MimeType string
	Body     io.Reader
}

type Options struct {
	InputDir    string
	OutputDir   string
	FFmpegPath  string
	FFprobePath string
	Log         *logger.Logger
}

// Segmenter turns an upload into ordered segment files. It is safe for
// concurrent use; every upload gets its own uuid in all artifact names.
type Segmenter struct {
	inputDir  string
	outputDir string
	log       *logger.Logger

	probe func(ctx context.Context, path string) (time.Duration, error)
	cut   func(ctx context.Context, in, out string, start, dur time.Duration) error
	newID func() string
}

func NewSegmenter(opts Options) *Segmenter {
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := opts.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	log := opts.Log
	if log == nil {
		log = logger.New()
	}
	return &Segmenter{
		inputDir:  opts.InputDir,
		outputDir: opts.OutputDir,
		log:       log,
		probe: func(ctx context.Context, path string) (time.Duration, error) {
			return probeDuration(ctx, ffprobe, path)
		},
		cut: func(ctx context.Context, in, out string, start, dur time.Duration) error {
			return cutWindow(ctx, ffmpeg, in, out, start, dur)
		},
		newID: func() string { return uuid.New().String() },
	}
}

// Result is a finished split: the probed duration of the upload and its
// segments in order.
type Result struct {
	Duration time.Duration
	Segments []types.Segment
}

// DurationMs is the probed duration in fractional milliseconds.
func (r Result) DurationMs() float64 {
	return float64(r.Duration) / float64(time.Millisecond)
}

// Split stores the upload, probes it and cuts it into Window sized segments.
func (s *Segmenter) Split(ctx context.Context, up Upload) ([]types.Segment, error) {
	res, err := s.SplitAudio(ctx, up)
	return res.Segments, err
}

// SplitAudio is Split that also reports the probed duration. The stored
// upload is always removed before it returns. On error no segment files are
// left behind.
func (s *Segmenter) SplitAudio(ctx context.Context, up Upload) (Result, error) {
	const op = "media.split"
	log := logger.FromContext(ctx, s.log).WithField("component", "segmenter")

	for _, dir := range []string{s.inputDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, types.SegmentationError(op, fmt.Errorf("create dir %s: %w", dir, err))
		}
	}

	base, ext := splitName(up.Filename)
	name := base + "_" + s.newID()
	inPath := filepath.Join(s.inputDir, name+ext)

	n, err := writeFile(inPath, up.Body)
	defer removeQuiet(inPath)
	if err != nil {
		return Result{}, types.SegmentationError(op, err)
	}
	if n == 0 {
		return Result{}, types.SegmentationError(op, errors.New("empty audio input"))
	}

	mt, err := mimetype.DetectFile(inPath)
	if err != nil {
		return Result{}, types.SegmentationError(op, fmt.Errorf("detect type: %w", err))
	}
	if !isAudioContainer(mt) {
		return Result{}, types.SegmentationError(op, fmt.Errorf("unsupported media type %s", mt.String()))
	}
	if ext == "" {
		ext = mt.Extension()
	}
	if ext == "" {
		ext = ".mp3"
	}
	log = log.WithField("mime", mt.String()).WithField("mime_hint", up.MimeType).WithField("bytes", n)

	total, err := s.probe(ctx, inPath)
	if err != nil {
		return Result{}, types.SegmentationError(op, err)
	}
	windows := Plan(total, Window)
	if len(windows) == 0 {
		return Result{}, types.SegmentationError(op, fmt.Errorf("zero duration audio"))
	}
	log.WithField("duration_ms", total.Milliseconds()).WithField("segments", len(windows)).Info("splitting audio")

	segs := make([]types.Segment, 0, len(windows))
	for i, w := range windows {
		out := filepath.Join(s.outputDir, fmt.Sprintf("%s_%03d%s", name, i, ext))
		if err := s.cut(ctx, inPath, out, w.Start, w.Duration); err != nil {
			removeQuiet(out)
			Cleanup(segs)
			return Result{}, types.SegmentationError(op, fmt.Errorf("segment %d: %w", i, err))
		}
		segs = append(segs, types.Segment{
			Index:         i,
			Path:          out,
			StartOffsetMs: w.Start.Milliseconds(),
			DurationMs:    w.Duration.Milliseconds(),
		})
	}
	return Result{Duration: total, Segments: segs}, nil
}

// WindowSpan is one planned cut.
type WindowSpan struct {
	Start    time.Duration
	Duration time.Duration
}

// Plan partitions total into consecutive windows of size w; the last window
// holds the remainder. Durations are truncated to whole milliseconds.
func Plan(total, w time.Duration) []WindowSpan {
	total = total.Truncate(time.Millisecond)
	if total <= 0 || w <= 0 {
		return nil
	}
	count := int((total + w - 1) / w)
	spans := make([]WindowSpan, 0, count)
	for i := 0; i < count; i++ {
		start := time.Duration(i) * w
		d := w
		if rest := total - start; rest < w {
			d = rest
		}
		spans = append(spans, WindowSpan{Start: start, Duration: d})
	}
	return spans
}

// Cleanup removes segment files; missing files are ignored.
func Cleanup(segs []types.Segment) {
	for _, s := range segs {
		removeQuiet(s.Path)
	}
}

func writeFile(path string, r io.Reader) (int64, error) {
	if r == nil {
		return 0, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create input: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write input: %w", err)
	}
	return n, nil
}

func removeQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// splitName returns a filesystem safe base name and the lowercased extension
// (with dot) of a client supplied filename.
func splitName(filename string) (string, string) {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" || base == "/" {
		base = "audio"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	if len(ext) < 2 || len(ext) > 8 || unsafeChars.MatchString(ext) {
		ext = ""
	}
	return base, ext
}

func isAudioContainer(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || strings.HasPrefix(s, "video/") || s == "application/ogg" {
			return true
		}
	}
	return false
}
