package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voice-scribe-go/internal/types"
)

// chunkRecorder records the bytes of every Write call separately.
type chunkRecorder struct {
	*httptest.ResponseRecorder
	writes  []string
	flushes int
}

func (c *chunkRecorder) Write(b []byte) (int, error) {
	c.writes = append(c.writes, string(b))
	return c.ResponseRecorder.Write(b)
}

func (c *chunkRecorder) Flush() {
	c.flushes++
	c.ResponseRecorder.Flush()
}

func TestWriterOneWritePerFrame(t *testing.T) {
	rec := &chunkRecorder{ResponseRecorder: httptest.NewRecorder()}
	w := NewWriter(rec)

	recs := []types.TranscriptionRecord{
		{SegmentIndex: 0, Text: "hello", Percentage: 50},
		{SegmentIndex: 1, Text: "world", Percentage: 100},
	}
	for _, r := range recs {
		if err := w.Send(r); err != nil {
			t.Fatal(err)
		}
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentType {
		t.Fatalf("content type = %q", ct)
	}
	if len(rec.writes) != 2 {
		t.Fatalf("writes = %q", rec.writes)
	}
	for i, chunk := range rec.writes {
		// each chunk must parse as one JSON document on its own
		var got types.TranscriptionRecord
		if err := json.Unmarshal([]byte(chunk), &got); err != nil {
			t.Fatalf("chunk %d not independently parseable: %v", i, err)
		}
		if got != recs[i] {
			t.Errorf("chunk %d = %+v", i, got)
		}
		if !strings.HasSuffix(chunk, "\n") {
			t.Errorf("chunk %d not newline terminated", i)
		}
	}
	if rec.flushes < 3 {
		t.Errorf("flushes = %d, want one per frame plus headers", rec.flushes)
	}
}

func TestWriterErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	if err := w.SendError("transcription failed"); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(rec.Body.String())
	if line != `{"error":"transcription failed"}` {
		t.Fatalf("frame = %s", line)
	}
	if ErrorOf([]byte(line)) != "transcription failed" {
		t.Fatal("ErrorOf did not recognise frame")
	}
	if ErrorOf([]byte(`{"segmentIndex":0,"text":"error","percentage":100}`)) != "" {
		t.Fatal("record misread as error frame")
	}
}

func TestScanSkipsBlankLines(t *testing.T) {
	in := "{\"a\":1}\n\n  \r\n{\"a\":2}\n{\"a\":3}"
	var lines []string
	if err := Scan(strings.NewReader(in), func(l []byte) error {
		lines = append(lines, string(l))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if strings.Join(lines, "|") != `{"a":1}|{"a":2}|{"a":3}` {
		t.Fatalf("lines = %q", lines)
	}
}

func TestScanStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	n := 0
	err := Scan(strings.NewReader("1\n2\n3\n"), func([]byte) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}
