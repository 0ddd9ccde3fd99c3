// Package pipeline drives split -> transcribe -> emit for one upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/media"
	"voice-scribe-go/internal/transcription"
	"voice-scribe-go/internal/types"
)

// Splitter produces ordered segments for an upload.
type Splitter interface {
	Split(ctx context.Context, up media.Upload) ([]types.Segment, error)
}

// EmitFunc receives each record as soon as its segment is transcribed. It
// must deliver (flush) the record before returning.
type EmitFunc func(types.TranscriptionRecord) error

type Orchestrator struct {
	splitter    Splitter
	transcriber transcription.Transcriber
	log         *logger.Logger
}

func New(s Splitter, t transcription.Transcriber, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.New()
	}
	return &Orchestrator{splitter: s, transcriber: t, log: log}
}

// Run splits the upload and transcribes its segments strictly in order, one
// at a time, calling emit once per segment with increasing SegmentIndex.
//
// A transcription failure aborts the remaining segments; records already
// emitted stand. Context cancellation or an emit failure stops the run with a
// transport error. Segment files are removed on every return path.
func (o *Orchestrator) Run(ctx context.Context, up media.Upload, emit EmitFunc) error {
	log := logger.FromContext(ctx, o.log).WithField("component", "pipeline")
	start := time.Now()

	segs, err := o.splitter.Split(ctx, up)
	if err != nil {
		return err
	}
	defer media.Cleanup(segs)

	total := len(segs)
	log = log.WithField("segments", total)
	log.Info("transcription pipeline started")

	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			log.WithField("segment", i).Info("client gone, stopping pipeline")
			return types.TransportError("pipeline.run", err)
		}

		text, err := o.transcriber.Transcribe(ctx, seg.Path)
		if err != nil {
			if ctx.Err() != nil {
				return types.TransportError("pipeline.run", ctx.Err())
			}
			log.WithField("segment", i).WithError(err).Error("segment transcription failed")
			if types.KindOf(err) == types.KindUnknown {
				err = types.TranscriptionError("pipeline.run", err)
			}
			return fmt.Errorf("segment %d of %d: %w", i, total, err)
		}
		if rmErr := os.Remove(seg.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.WithField("segment", i).WithError(rmErr).Warn("failed to remove segment")
		}

		rec := types.TranscriptionRecord{
			SegmentIndex: i,
			Text:         text,
			Percentage:   types.Percentage(i, total),
		}
		if err := emit(rec); err != nil {
			return types.TransportError("pipeline.emit", err)
		}
		log.WithField("segment", i).WithField("percentage", rec.Percentage).Debug("segment emitted")
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("transcription pipeline finished")
	return nil
}
