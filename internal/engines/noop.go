package engines

import (
	"context"
	"time"
)

// The noop backends stand in where no native engine is linked. They keep
// the orchestration paths exercisable end to end: segmentation reports no
// subject (the normal fallback path), translation echoes its input, and
// speech completes after a short delay.

type NoopSegmenterBackend struct{}

func (NoopSegmenterBackend) Init(context.Context) error { return nil }

func (NoopSegmenterBackend) Segment(context.Context, string, string) (bool, error) {
	return false, nil
}

func (NoopSegmenterBackend) Close() error { return nil }

type NoopTranslatorBackend struct{}

func (NoopTranslatorBackend) Prepare(context.Context, LanguagePair, NetworkClass) error { return nil }

func (NoopTranslatorBackend) Translate(_ context.Context, _ LanguagePair, text string) (string, error) {
	return text, nil
}

func (NoopTranslatorBackend) Close() error { return nil }

type NoopSpeakerBackend struct{}

func (NoopSpeakerBackend) Speak(ctx context.Context, _, _ string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil
	}
}

func (NoopSpeakerBackend) Close() error { return nil }
