// Package stream writes and reads newline delimited JSON over long lived
// HTTP responses.
//
// Every value is marshaled, terminated with '\n' and handed to the
// ResponseWriter in a single Write followed by a flush, so a reader that
// treats each received chunk as one JSON document keeps working. That only
// holds while nothing between server and client re-chunks the body; readers
// should split on newlines instead (see Scan).
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"voice-scribe-go/internal/types"
)

const ContentType = "application/x-ndjson; charset=utf-8"

// maxLine bounds a single frame on the reading side.
const maxLine = 4 << 20

type Writer struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether headers have been sent.
func (s *Writer) Started() bool { return s.started }

// Start sends the streaming headers with status 200.
func (s *Writer) Start() error {
	if s.started {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	return s.flush()
}

// Send writes v as one frame and flushes it to the client.
func (s *Writer) Send(v any) error {
	if err := s.Start(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: encode frame: %w", err)
	}
	b = append(b, '\n')
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("stream: write frame: %w", err)
	}
	return s.flush()
}

// SendError writes the terminal error frame.
func (s *Writer) SendError(msg string) error {
	return s.Send(types.ErrorFrame{Error: msg})
}

func (s *Writer) flush() error {
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("stream: flush: %w", err)
	}
	return nil
}

// Scan calls fn with every non-blank line read from r. It stops at the first
// error returned by fn or at the end of r.
func Scan(r io.Reader, fn func(line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stream: read: %w", err)
	}
	return nil
}

// ErrorOf returns the message of an error frame, or "" if line is not one.
func ErrorOf(line []byte) string {
	if !bytes.Contains(line, []byte(`"error"`)) {
		return ""
	}
	var f types.ErrorFrame
	if err := json.Unmarshal(line, &f); err != nil {
		return ""
	}
	return f.Error
}
