//go:build !llama

package gateway

// This file provides a no-CGO stub for the llama vision adapter. It is
// compiled when the 'llama' build tag is NOT set, keeping default builds and
// CI CGO-free. The real adapter lives in adapter_llama.go (tagged 'llama').

import (
	"context"
)

type llamaVisionAdapter struct {
	ctxSize int
	threads int
}

// NewLlamaVisionAdapter returns the llama.cpp-backed adapter, or a stub that
// refuses to load when the 'llama' build tag is absent. The stub avoids any
// mocked behavior in production binaries built without CGO support.
func NewLlamaVisionAdapter(ctxSize, threads int) VisionAdapter {
	return &llamaVisionAdapter{ctxSize: ctxSize, threads: threads}
}

func (a *llamaVisionAdapter) Ready() bool { return true }

func (a *llamaVisionAdapter) Load(cfg LoadConfig) (VisionSession, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrEngineUnavailable("llama support not built (missing 'llama' build tag)")
}

type llamaVisionSession struct{}

func (s *llamaVisionSession) Describe(ctx context.Context, req DescribeRequest, onToken func(string) error) (FinalResult, error) {
	select {
	case <-ctx.Done():
		return FinalResult{}, ctx.Err()
	default:
	}
	return FinalResult{}, ErrEngineUnavailable("llama support not built (missing 'llama' build tag)")
}

func (s *llamaVisionSession) Reset() error { return nil }
func (s *llamaVisionSession) Alive() bool  { return false }
func (s *llamaVisionSession) Close() error { return nil }
