package media

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"voice-scribe-go/internal/logger"
)

// requireFFmpeg returns the ffmpeg and ffprobe paths or skips the test.
func requireFFmpeg(t *testing.T) (string, string) {
	t.Helper()
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}
	return ffmpeg, ffprobe
}

// sineWAV writes a mono PCM tone of length d.
func sineWAV(t *testing.T, ffmpeg string, d time.Duration) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "tone.wav")
	var stderr bytes.Buffer
	cmd := exec.Command(ffmpeg,
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=8000:duration="+seconds(d),
		"-c:a", "pcm_s16le",
		out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Skipf("ffmpeg cannot synthesize audio: %v: %s", err, stderr.String())
	}
	return out
}

func within(got, want, tol time.Duration) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= tol
}

func TestFFmpegProbeAndCut(t *testing.T) {
	ffmpeg, ffprobe := requireFFmpeg(t)
	ctx := context.Background()
	src := sineWAV(t, ffmpeg, 3*time.Second)

	total, err := probeDuration(ctx, ffprobe, src)
	if err != nil {
		t.Fatal(err)
	}
	if !within(total, 3*time.Second, 50*time.Millisecond) {
		t.Fatalf("probed %s, want about 3s", total)
	}

	out := filepath.Join(t.TempDir(), "cut.wav")
	if err := cutWindow(ctx, ffmpeg, src, out, time.Second, 1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	got, err := probeDuration(ctx, ffprobe, out)
	if err != nil {
		t.Fatal(err)
	}
	if !within(got, 1500*time.Millisecond, 50*time.Millisecond) {
		t.Fatalf("cut is %s, want about 1.5s", got)
	}
}

func TestFFmpegProbeRejectsGarbage(t *testing.T) {
	_, ffprobe := requireFFmpeg(t)
	p := filepath.Join(t.TempDir(), "junk.mp3")
	if err := os.WriteFile(p, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := probeDuration(context.Background(), ffprobe, p); err == nil {
		t.Fatal("expected probe failure")
	}
}

func TestSegmenterWithRealFFmpeg(t *testing.T) {
	ffmpeg, ffprobe := requireFFmpeg(t)
	src := sineWAV(t, ffmpeg, 2*time.Second)
	f, err := os.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	root := t.TempDir()
	s := NewSegmenter(Options{
		InputDir:    filepath.Join(root, "input"),
		OutputDir:   filepath.Join(root, "output"),
		FFmpegPath:  ffmpeg,
		FFprobePath: ffprobe,
		Log:         logger.Discard(),
	})
	res, err := s.SplitAudio(context.Background(), Upload{Filename: "tone.wav", Body: f})
	if err != nil {
		t.Fatal(err)
	}
	defer Cleanup(res.Segments)

	if len(res.Segments) != 1 {
		t.Fatalf("segments = %+v", res.Segments)
	}
	if !within(res.Duration, 2*time.Second, 50*time.Millisecond) {
		t.Errorf("duration = %s", res.Duration)
	}
	seg := res.Segments[0]
	got, err := probeDuration(context.Background(), ffprobe, seg.Path)
	if err != nil {
		t.Fatalf("segment not playable: %v", err)
	}
	if !within(got, res.Duration, 50*time.Millisecond) {
		t.Errorf("segment is %s, upload is %s", got, res.Duration)
	}
	if names := listDir(t, filepath.Join(root, "input")); len(names) != 0 {
		t.Errorf("upload not removed: %v", names)
	}
}
