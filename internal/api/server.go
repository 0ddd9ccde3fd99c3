// Package api exposes the transcription pipeline and chat relay over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"voice-scribe-go/internal/chat"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/media"
	"voice-scribe-go/internal/pipeline"
	"voice-scribe-go/internal/types"
)

// Splitter is the /split dependency.
type Splitter interface {
	SplitAudio(ctx context.Context, up media.Upload) (media.Result, error)
}

// Streamer is the /transcribe-stream dependency.
type Streamer interface {
	Run(ctx context.Context, up media.Upload, emit pipeline.EmitFunc) error
}

// WholeTranscriber is the /transcribe dependency.
type WholeTranscriber interface {
	TranscribeUpload(ctx context.Context, up media.Upload) (types.TranscribeResult, error)
}

type Deps struct {
	Splitter       Splitter
	Pipeline       Streamer
	Processor      WholeTranscriber
	Chat           chat.Completer
	Log            *logger.Logger
	MaxUploadBytes int64
}

type Server struct {
	splitter  Splitter
	pipeline  Streamer
	processor WholeTranscriber
	chat      chat.Completer
	log       *logger.Logger
	maxUpload int64
}

const (
	defaultMaxUpload = 512 << 20
	maxChatBody      = 8 << 20
)

func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.New()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUpload
	}
	return &Server{
		splitter:  d.Splitter,
		pipeline:  d.Pipeline,
		processor: d.Processor,
		chat:      d.Chat,
		log:       d.Log,
		maxUpload: d.MaxUploadBytes,
	}
}

// Routes returns the HTTP handler for all endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /split", s.handleSplit)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /transcribe-stream", s.handleTranscribeStream)
	mux.HandleFunc("GET /transcribe/download", s.handleDownload)
	mux.HandleFunc("POST /chat", s.handleChat)

	return s.withRequestLog(mux)
}

// withRequestLog assigns a request id, stores a request scoped log entry in
// the context and logs completion.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := logger.RequestID(r)
		entry := s.log.WithRequestID(r, reqID)
		w.Header().Set(logger.RequestIDHeader, reqID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(logger.IntoContext(r.Context(), entry)))

		entry.WithFields(logrus.Fields{
			"status":      sw.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request finished")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying flusher.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// writeError logs err and replies with a structured {error} body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	log := logger.FromContext(r.Context(), s.log)
	status := types.HTTPStatus(err)
	if status >= 500 {
		log.WithError(err).Error("request failed")
	} else {
		log.WithError(err).Warn("request rejected")
	}
	if werr := writeJSON(w, status, errorBody{Error: types.PublicMessage(err, fallback)}); werr != nil {
		log.WithError(werr).Error("failed to write response")
	}
}

func isClientGone(err error) bool {
	return types.IsKind(err, types.KindTransport) || errors.Is(err, context.Canceled)
}
