package types

import "time"

// EngineType selects the inference execution mode for a model. The two modes
// are mutually exclusive and use different file formats and load parameters.
type EngineType string

const (
	EngineNPU    EngineType = "npu"
	EngineCPUGPU EngineType = "cpu_gpu"
)

// ModelDescriptor is a static catalog entry for a downloadable vision model.
// Descriptors are immutable; they are defined at build time (or merged from a
// user catalog file) and looked up by ID.
type ModelDescriptor struct {
	// Stable identifier for the model.
	// example: fastvlm-0.5b
	ID string `json:"id" yaml:"id" toml:"id"`
	// Human-friendly name.
	// example: FastVLM 0.5B
	DisplayName string `json:"display_name" yaml:"display_name" toml:"display_name"`
	// Backing engine type: npu or cpu_gpu.
	Engine EngineType `json:"engine" yaml:"engine" toml:"engine"`
	// Remote origin repository, e.g. a Hugging Face repo id.
	// example: apple/fastvlm-0.5b-mlx
	OriginRepo string `json:"origin_repo" yaml:"origin_repo" toml:"origin_repo"`
	// Base URL of the hosting origin. Empty means the manager default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url" toml:"base_url"`
	// Approximate total size shown to the user before downloading.
	// example: 1.1 GB
	SizeLabel string `json:"size_label,omitempty" yaml:"size_label" toml:"size_label"`
	// Ordered list of files required for the model to be usable.
	Files []string `json:"files" yaml:"files" toml:"files"`
	// Designated main file handed to the engine. Empty means the engine
	// loads the whole model directory.
	MainFile string `json:"main_file,omitempty" yaml:"main_file" toml:"main_file"`
	// Optional auxiliary projection file (multimodal adapters).
	ProjectionFile string `json:"projection_file,omitempty" yaml:"projection_file" toml:"projection_file"`
	// Optional resize hint: the longest image edge the engine accepts.
	// Zero means no resizing is required.
	MaxEdge int `json:"max_edge,omitempty" yaml:"max_edge" toml:"max_edge"`
	// Languages the model can describe images in.
	Languages []string `json:"languages,omitempty" yaml:"languages" toml:"languages"`
}

// DownloadStatus is the lifecycle state of a model download.
type DownloadStatus string

const (
	DownloadNotStarted DownloadStatus = "not_downloaded"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadDone       DownloadStatus = "downloaded"
	DownloadFailed     DownloadStatus = "error"
)

// ModelDownloadState is a per-model, in-memory progress snapshot. It is
// replaced wholesale on every progress tick; consumers never observe a
// partially mutated value.
type ModelDownloadState struct {
	ModelID string         `json:"model_id"`
	Status  DownloadStatus `json:"status"`
	// Fractional progress in [0,1] across the whole file set.
	Progress float64 `json:"progress"`
	// Name of the file currently transferring, if any.
	CurrentFile string `json:"current_file,omitempty"`
	FilesDone   int    `json:"files_done"`
	FilesTotal  int    `json:"files_total"`
	LastError   string `json:"last_error,omitempty"`
}

// CaptureMode selects how a captured frame is prepared for inference.
type CaptureMode string

const (
	// ModeScene describes the full frame.
	ModeScene CaptureMode = "scene"
	// ModeObject isolates the main subject before inference.
	ModeObject CaptureMode = "object"
)

// CaptureState is the orchestrator's user-facing state.
type CaptureState string

const (
	StateLoading     CaptureState = "loading"
	StateCameraReady CaptureState = "camera_ready"
	StateSegmenting  CaptureState = "segmenting"
	StateProcessing  CaptureState = "processing"
	StateTranslating CaptureState = "translating"
	StateShowingCard CaptureState = "showing_card"
)

// PerformanceProfile reports timing for one completed generation.
type PerformanceProfile struct {
	TTFTMs           int64   `json:"ttft_ms"`
	PromptTokens     int     `json:"prompt_tokens"`
	PrefillTokPerSec float64 `json:"prefill_tok_per_sec"`
	GeneratedTokens  int     `json:"generated_tokens"`
	DecodeTokPerSec  float64 `json:"decode_tok_per_sec"`
}

// StreamEventKind tags the gateway's streaming event union.
type StreamEventKind string

const (
	EventToken    StreamEventKind = "token"
	EventComplete StreamEventKind = "complete"
	EventError    StreamEventKind = "error"
)

// StreamEvent is one element of the gateway's generation stream. Within one
// session, zero or more Token events are delivered strictly in order, then
// exactly one terminal Complete or Error event.
type StreamEvent struct {
	Kind StreamEventKind `json:"kind"`
	// Token text for Kind == token; full text for Kind == complete.
	Text    string              `json:"text,omitempty"`
	Profile *PerformanceProfile `json:"profile,omitempty"`
	Message string              `json:"message,omitempty"`
}

// PreprocessHint describes what image preparation a backend requires before
// submission: fixed-size crop (npu), aspect-preserving downscale (resize),
// or nothing (none).
type PreprocessHint string

const (
	PreprocessNPU    PreprocessHint = "npu"
	PreprocessResize PreprocessHint = "resize"
	PreprocessNone   PreprocessHint = "none"
)

// LearnCard is a persisted flashcard. It owns its image file on disk:
// deleting the card must delete the file.
type LearnCard struct {
	// Creation-timestamp-derived identifier, unique and sortable.
	// example: card-20250114-093051.204
	ID string `json:"id"`
	// Absolute path of the card's owned image file.
	ImagePath string `json:"imagePath"`
	// Text in the model's source language.
	SourceText string `json:"sourceText"`
	// Translated text shown to the learner.
	TargetText string `json:"targetText"`
	// BCP-47-ish code of the target language.
	// example: fr
	TargetLanguageCode string    `json:"targetLanguageCode"`
	CreatedAt          time.Time `json:"createdAt"`
}
