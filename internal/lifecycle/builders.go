package lifecycle

import (
	"context"

	"github.com/bryanchriswhite/addertuner/internal/codec"
	"github.com/bryanchriswhite/addertuner/internal/config"
	"github.com/bryanchriswhite/addertuner/internal/source"
)

// TranscodeBuilder opens framed videos and camera recordings
type TranscodeBuilder struct {
	Options source.Options
}

func (b TranscodeBuilder) Build(ctx context.Context, path string, p config.Params, resumeFrame uint32) (Active, error) {
	src, err := source.Open(ctx, path, p, resumeFrame, b.Options)
	if err != nil {
		return nil, err
	}
	if cam, ok := src.(*source.EventCamera); ok {
		return &EventCamera{Source: cam, Knobs: cam.Knobs()}, nil
	}
	return &Framed{Source: src}, nil
}

// PlaybackBuilder opens encoded event streams
type PlaybackBuilder struct{}

func (PlaybackBuilder) Build(ctx context.Context, path string, p config.Params, resumeFrame uint32) (Active, error) {
	if source.Classify(path) != source.KindStream {
		return nil, source.InvalidFileType(source.PlayerPrefix)
	}
	dec, err := codec.Open(path)
	if err != nil {
		e := source.InvalidFileType(source.PlayerPrefix)
		e.Err = err
		return nil, e
	}
	return &Playback{Decoder: dec}, nil
}
