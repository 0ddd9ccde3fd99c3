package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-scribe-go/internal/api"
	"voice-scribe-go/internal/chat"
	"voice-scribe-go/internal/config"
	"voice-scribe-go/internal/llm"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/media"
	"voice-scribe-go/internal/pipeline"
	"voice-scribe-go/internal/processor"
	"voice-scribe-go/internal/transcription"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	log.WithField("service", "voice-scribe-go").Info("starting service")

	client := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	var stt transcription.Transcriber
	if cfg.MockTranscribe {
		log.Warn("USE_MOCK_TRANSCRIBE=true, transcription service disabled")
		stt = transcription.Mock{}
	} else {
		if cfg.OpenAIAPIKey == "" {
			log.Warn("OPENAI_API_KEY is not set, transcription requests will fail")
		}
		stt = transcription.New(client, transcription.Options{
			Model:          cfg.TranscribeModel,
			MaxRetries:     cfg.TranscribeMaxRetries,
			AttemptTimeout: cfg.TranscribeTimeout,
			Log:            log,
		})
	}

	var completer chat.Completer
	if cfg.MockLLM {
		log.Warn("USE_MOCK_LLM=true, chat service disabled")
		completer = chat.Mock{}
	} else {
		completer = chat.New(client, log)
	}

	segmenter := media.NewSegmenter(media.Options{
		InputDir:    cfg.InputDir,
		OutputDir:   cfg.OutputDir,
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Log:         log,
	})

	server := api.New(api.Deps{
		Splitter:       segmenter,
		Pipeline:       pipeline.New(segmenter, stt, log),
		Processor:      processor.New(cfg.InputDir, stt, log),
		Chat:           completer,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     server.Routes(),
		ReadTimeout: 5 * time.Minute,
		// streams run as long as the audio takes to transcribe
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", addr).
			WithField("input_dir", cfg.InputDir).
			WithField("output_dir", cfg.OutputDir).
			Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
