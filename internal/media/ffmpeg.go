package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 input
func probeDuration(ctx context.Context, bin, path string) (time.Duration, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbeDuration(string(out))
}

func parseProbeDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe: no duration reported")
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// cutWindow writes [start, start+dur) of in to out without re-encoding.
//
// ffmpeg -hide_banner -loglevel error -nostdin -y -ss S -i in -t D -map 0:a -c copy out
func cutWindow(ctx context.Context, bin, in, out string, start, dur time.Duration) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-ss", seconds(start),
		"-i", in,
		"-t", seconds(dur),
		"-map", "0:a",
		"-c", "copy",
		out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
