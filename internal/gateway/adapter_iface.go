package gateway

import (
	"context"

	"lingolens/pkg/types"
)

// VisionAdapter abstracts the vision-language runtime behind the gateway.
// Concrete implementations (e.g., llama.cpp) should satisfy this interface.
type VisionAdapter interface {
	// Ready reports whether the engine's own startup has completed. This is
	// independent of whether a model is loaded.
	Ready() bool
	// Load prepares a session for the given model configuration.
	Load(cfg LoadConfig) (VisionSession, error)
}

// VisionSession owns one loaded model instance.
type VisionSession interface {
	// Describe streams tokens for an image+prompt submission. The onToken
	// callback is invoked for each token in order; returning an error from
	// it halts generation. Implementations must return when ctx is canceled.
	Describe(ctx context.Context, req DescribeRequest, onToken func(string) error) (FinalResult, error)
	// Reset clears conversational/context state so the next Describe starts
	// from a clean slate.
	Reset() error
	// Alive reports whether the underlying engine resources still exist.
	// The host platform may reclaim them without killing the process.
	Alive() bool
	// Close releases the session. Idempotent.
	Close() error
}

// LoadConfig captures everything needed to (re)load a model.
type LoadConfig struct {
	ModelPath      string
	ProjectionPath string
	BackendID      string
	DeviceID       int
	GPULayers      int
}

// DescribeRequest is one image+prompt submission.
type DescribeRequest struct {
	ImagePath string
	Prompt    string
	Hint      types.PreprocessHint
	// MaxEdge bounds the longest image edge before submission; zero means
	// the descriptor/backend default.
	MaxEdge int
}

// FinalResult summarizes a generation after streaming.
type FinalResult struct {
	Content string
	Profile types.PerformanceProfile
}
