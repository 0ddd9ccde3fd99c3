// Package client talks to a running voice-scribe server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"voice-scribe-go/internal/chat"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/stream"
	"voice-scribe-go/internal/transcript"
	"voice-scribe-go/internal/types"
)

type Client struct {
	base string
	http *http.Client
	log  *logger.Logger
}

// New returns a client for the server at baseURL. A nil hc means
// http.DefaultClient, which has no overall timeout; streams can run long.
func New(baseURL string, hc *http.Client, log *logger.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if log == nil {
		log = logger.New()
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc, log: log}
}

// TranscribeStream uploads the file at path to /transcribe-stream and folds
// the records into a transcript. onRecord, if set, sees every record as it
// arrives. A stream that stops before 100% is an error; the partial text is
// still returned.
func (c *Client) TranscribeStream(ctx context.Context, path string, onRecord func(types.TranscriptionRecord)) (string, error) {
	const op = "client.transcribe_stream"

	f, err := os.Open(path)
	if err != nil {
		return "", types.ValidationError(op, fmt.Sprintf("open %s: %v", path, err))
	}
	defer f.Close()

	body, contentType := multipartBody(filepath.Base(path), f)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transcribe-stream", body)
	if err != nil {
		return "", types.TransportError(op, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", types.TransportError(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(op, resp)
	}

	var b transcript.Builder
	err = stream.Scan(resp.Body, func(line []byte) error {
		if msg := stream.ErrorOf(line); msg != "" {
			return types.TranscriptionError(op, errors.New(msg))
		}
		var rec types.TranscriptionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			c.log.WithError(err).Warn("skipping malformed record")
			return nil
		}
		if err := b.Add(rec); err != nil {
			return types.TransportError(op, err)
		}
		if onRecord != nil {
			onRecord(rec)
		}
		return nil
	})
	if err != nil {
		if types.KindOf(err) == types.KindUnknown {
			err = types.TransportError(op, err)
		}
		return b.Text(), err
	}
	if !b.Complete() {
		return b.Text(), types.TransportError(op, fmt.Errorf("stream ended at %d%%", b.Percentage()))
	}
	return b.Text(), nil
}

// Chat posts history to /chat and returns the assistant reply. onDelta, if
// set, sees every content fragment as it arrives.
func (c *Client) Chat(ctx context.Context, history []types.ConversationMessage, onDelta func(string)) (types.ConversationMessage, error) {
	const op = "client.chat"

	payload, err := json.Marshal(history)
	if err != nil {
		return types.ConversationMessage{}, types.ValidationError(op, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat", bytes.NewReader(payload))
	if err != nil {
		return types.ConversationMessage{}, types.TransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.ConversationMessage{}, types.TransportError(op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.ConversationMessage{}, statusError(op, resp)
	}
	return chat.Consume(resp.Body, c.log, onDelta)
}

// multipartBody streams r as the "file" field without buffering it.
func multipartBody(filename string, r io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(fw, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func statusError(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return types.ValidationError(op, msg)
	}
	return types.TransportError(op, fmt.Errorf("server returned %d: %s", resp.StatusCode, msg))
}
