package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/types"
)

// Transcriber turns one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type Options struct {
	Model           string
	MaxRetries      uint64
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	Log             *logger.Logger
}

// Client calls the OpenAI audio transcription endpoint, one request per file.
type Client struct {
	api  *openai.Client
	opts Options
	log  *logger.Logger
}

func New(api *openai.Client, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = openai.Whisper1
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 2 * time.Minute
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	log := opts.Log
	if log == nil {
		log = logger.New()
	}
	return &Client{api: api, opts: opts, log: log}
}

// Transcribe sends path to the speech-to-text service and returns the text as
// received. Failures are reported as transcription errors; 5xx, 429 and
// network failures are retried up to MaxRetries times.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	const op = "transcription.transcribe"
	log := logger.FromContext(ctx, c.log).WithField("module", "transcription").WithField("file", filepath.Base(path))

	if err := checkPlayable(path); err != nil {
		return "", types.TranscriptionError(op, err)
	}

	var text string
	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()

		resp, err := c.api.CreateTranscription(actx, openai.AudioRequest{
			Model:    c.opts.Model,
			FilePath: path,
			Format:   openai.AudioResponseFormatJSON,
		})
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = resp.Text
		return nil
	}

	var b backoff.BackOff = newBackOff(c.opts.InitialInterval)
	b = backoff.WithMaxRetries(b, c.opts.MaxRetries)
	notify := func(err error, wait time.Duration) {
		log.WithField("attempt", attempt).WithField("retry_in", wait.String()).WithError(err).Warn("transcription attempt failed")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return "", types.TranscriptionError(op, describe(err))
	}

	log.WithField("attempts", attempt).WithField("chars", len(text)).Debug("transcription complete")
	return text, nil
}

func newBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 20 * initial
	b.MaxElapsedTime = 0 // bounded by MaxRetries
	b.Reset()
	return b
}

func checkPlayable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("segment unavailable: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("segment %s is a directory", path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("segment %s is empty", filepath.Base(path))
	}
	return nil
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	// dial/read failures and per-attempt timeouts
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func describe(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("speech-to-text status %d: %w", apiErr.HTTPStatusCode, err)
	}
	return err
}
