package engines

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SpeakerBackend is the contract to the speech synthesis engine. Speak
// blocks until the utterance finishes or ctx is cancelled.
type SpeakerBackend interface {
	Speak(ctx context.Context, text, lang string) error
	Close() error
}

// SpeechListener receives utterance lifecycle callbacks, keyed by the id
// returned from Speak so a consumer can correlate overlapping requests.
type SpeechListener interface {
	OnSpeechStart(id string)
	OnSpeechDone(id string)
	OnSpeechError(id string, err error)
}

// Speaker plays at most one utterance at a time. Starting a new utterance
// cancels the running one; the old utterance still reports Done to its
// listener so no id is left dangling.
type Speaker struct {
	backend  SpeakerBackend
	listener SpeechListener
	log      zerolog.Logger

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
}

func NewSpeaker(backend SpeakerBackend, listener SpeechListener, log zerolog.Logger) *Speaker {
	return &Speaker{backend: backend, listener: listener, log: log}
}

// Speak starts synthesizing text in lang and returns the utterance id
// immediately. Any running utterance is stopped first.
func (s *Speaker) Speak(text, lang string) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.current = id
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, id, text, lang)
	return id
}

func (s *Speaker) run(ctx context.Context, id, text, lang string) {
	if s.listener != nil {
		s.listener.OnSpeechStart(id)
	}
	err := s.backend.Speak(ctx, text, lang)

	s.mu.Lock()
	if s.current == id {
		s.current = ""
		s.cancel = nil
	}
	s.mu.Unlock()

	if s.listener == nil {
		return
	}
	// A cancelled utterance counts as done, not as an error: the consumer
	// asked for the interruption.
	if err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Str("utterance", id).Msg("speech failed")
		s.listener.OnSpeechError(id, err)
		return
	}
	s.listener.OnSpeechDone(id)
}

// Speaking reports whether an utterance is currently active.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != ""
}

// Stop cancels the active utterance. Safe to call when idle.
func (s *Speaker) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Release stops playback and closes the backend.
func (s *Speaker) Release() {
	s.Stop()
	if err := s.backend.Close(); err != nil {
		s.log.Warn().Err(err).Msg("speaker close failed")
	}
}
