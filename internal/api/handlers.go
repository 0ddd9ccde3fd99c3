package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"voice-scribe-go/internal/chat"
	"voice-scribe-go/internal/export"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/media"
	"voice-scribe-go/internal/stream"
	"voice-scribe-go/internal/types"
)

const (
	msgNoFile          = "No file uploaded"
	msgSplitFailed     = "Failed to process the audio file"
	msgTranscribeFail  = "Failed to transcribe audio"
	msgChatFailed      = "Failed to complete chat"
	msgInvalidChatBody = "Invalid chat request"
)

// readUpload extracts the multipart "file" field. The returned release func
// must be called once the upload has been consumed.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (media.Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return media.Upload{}, func() {}, types.ValidationError("api.upload", fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit))
		}
		return media.Upload{}, func() {}, types.ValidationError("api.upload", msgNoFile)
	}
	release := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		release()
		return media.Upload{}, func() {}, types.ValidationError("api.upload", msgNoFile)
	}
	if hdr.Size == 0 {
		file.Close()
		release()
		return media.Upload{}, func() {}, types.ValidationError("api.upload", msgNoFile)
	}

	up := media.Upload{
		Filename: hdr.Filename,
		MimeType: hdr.Header.Get("Content-Type"),
		Body:     file,
	}
	return up, func() { closeFile(file); release() }, nil
}

func closeFile(f multipart.File) { _ = f.Close() }

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	up, release, err := s.readUpload(w, r)
	defer release()
	if err != nil {
		s.writeError(w, r, err, msgSplitFailed)
		return
	}

	split, err := s.splitter.SplitAudio(r.Context(), up)
	if err != nil {
		s.writeError(w, r, err, msgSplitFailed)
		return
	}
	// segments do not outlive the request; paths are informational
	defer media.Cleanup(split.Segments)

	res := types.SplitResult{
		Duration:     split.DurationMs(),
		SegmentCount: len(split.Segments),
		SegmentPaths: make([]string, 0, len(split.Segments)),
	}
	for _, seg := range split.Segments {
		res.SegmentPaths = append(res.SegmentPaths, seg.Path)
	}

	if err := writeJSON(w, http.StatusOK, res); err != nil {
		logger.FromContext(r.Context(), s.log).WithError(err).Error("failed to write response")
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	up, release, err := s.readUpload(w, r)
	defer release()
	if err != nil {
		s.writeError(w, r, err, msgTranscribeFail)
		return
	}

	res, err := s.processor.TranscribeUpload(r.Context(), up)
	if err != nil {
		s.writeError(w, r, err, msgTranscribeFail)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		logger.FromContext(r.Context(), s.log).WithError(err).Error("failed to write response")
	}
}

func (s *Server) handleTranscribeStream(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.log)
	up, release, err := s.readUpload(w, r)
	defer release()
	if err != nil {
		s.writeError(w, r, err, msgTranscribeFail)
		return
	}

	sw := stream.NewWriter(w)
	sent := 0
	err = s.pipeline.Run(r.Context(), up, func(rec types.TranscriptionRecord) error {
		if err := sw.Send(rec); err != nil {
			return err
		}
		sent++
		return nil
	})
	switch {
	case err == nil:
		log.WithField("records", sent).Info("transcription stream complete")
	case isClientGone(err):
		log.WithField("records", sent).WithError(err).Info("client disconnected mid-stream")
	case !sw.Started():
		s.writeError(w, r, err, msgTranscribeFail)
	default:
		log.WithField("records", sent).WithError(err).Error("transcription stream aborted")
		if werr := sw.SendError(msgTranscribeFail); werr != nil {
			log.WithError(werr).Warn("failed to write error frame")
		}
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("text")
	if text == "" {
		text = export.DefaultText
	}
	f, err := export.Render(q.Get("format"), text)
	if err != nil {
		s.writeError(w, r, types.ValidationError("api.download", err.Error()), "")
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Body)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.log)

	var history []types.ConversationMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&history); err != nil {
		s.writeError(w, r, types.ValidationError("api.chat", msgInvalidChatBody), msgChatFailed)
		return
	}
	if err := chat.Validate(history); err != nil {
		s.writeError(w, r, err, msgChatFailed)
		return
	}

	sw := stream.NewWriter(w)
	err := s.chat.Complete(r.Context(), history, func(c types.ChatDeltaChunk) error {
		return sw.Send(c)
	})
	switch {
	case err == nil:
	case isClientGone(err):
		log.WithError(err).Info("client disconnected during chat")
	case !sw.Started():
		s.writeError(w, r, err, msgChatFailed)
	default:
		log.WithError(err).Error("chat stream aborted")
		if werr := sw.SendError(msgChatFailed); werr != nil {
			log.WithError(werr).Warn("failed to write error frame")
		}
	}
}
