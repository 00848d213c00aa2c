package engines

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SegmenterBackend is the narrow contract to the subject-isolation engine.
type SegmenterBackend interface {
	Init(ctx context.Context) error
	// Segment isolates the main subject of the input image into outputPath.
	// found=false means no subject was detected, which is a normal outcome.
	Segment(ctx context.Context, inputPath, outputPath string) (found bool, err error)
	Close() error
}

// Segmenter is the request/response façade over a SegmenterBackend.
type Segmenter struct {
	backend SegmenterBackend
	log     zerolog.Logger

	mu    sync.Mutex
	ready bool
}

func NewSegmenter(backend SegmenterBackend, log zerolog.Logger) *Segmenter {
	return &Segmenter{backend: backend, log: log}
}

// Initialize brings the backend up. Idempotent; safe to call redundantly.
func (s *Segmenter) Initialize(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Segmenter) initLocked(ctx context.Context) Result {
	if s.ready {
		return ok()
	}
	if err := s.backend.Init(ctx); err != nil {
		return failErr(err)
	}
	s.ready = true
	return ok()
}

func (s *Segmenter) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Warmup pre-triggers any lazy model fetch so the first real segmentation
// isn't slow. Failures are logged, not surfaced: warmup is advisory.
func (s *Segmenter) Warmup(ctx context.Context) {
	if res := s.Initialize(ctx); !res.OK {
		s.log.Warn().Str("error", res.Message).Msg("segmenter warmup failed")
	}
}

// Segment isolates the subject of inputPath into outputPath. Initializes
// the backend on first use if Warmup was skipped. A missing subject or a
// decode failure yields OK=false; callers fall back to the unsegmented
// image.
func (s *Segmenter) Segment(ctx context.Context, inputPath, outputPath string) SegmentResult {
	s.mu.Lock()
	if res := s.initLocked(ctx); !res.OK {
		s.mu.Unlock()
		return SegmentResult{Result: res}
	}
	s.mu.Unlock()

	found, err := s.backend.Segment(ctx, inputPath, outputPath)
	if err != nil {
		return SegmentResult{Result: failErr(err)}
	}
	if !found {
		return SegmentResult{Result: fail("no subject detected")}
	}
	return SegmentResult{Result: ok(), OutputPath: outputPath}
}

// Release tears down the backend. Idempotent.
func (s *Segmenter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return
	}
	if err := s.backend.Close(); err != nil {
		s.log.Warn().Err(err).Msg("segmenter close failed")
	}
	s.ready = false
}
