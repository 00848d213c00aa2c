package types

// LoadRequest asks the gateway to load a model.
type LoadRequest struct {
	// Model id from the catalog. If empty, the configured default is used.
	// example: fastvlm-0.5b
	Model string `json:"model,omitempty"`
	// Backend identifier passed through to the engine.
	// example: cpu
	BackendID string `json:"backend_id,omitempty"`
	// Device identifier for multi-accelerator hosts.
	DeviceID int `json:"device_id,omitempty"`
	// Number of layers offloaded to the GPU (cpu_gpu engines).
	// example: 24
	GPULayers int `json:"gpu_layers,omitempty"`
}

// LoadResult is the gateway's structured load outcome. Failures are values,
// not errors escaping the gateway boundary.
type LoadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CaptureRequest starts one capture cycle from an already-acquired frame.
type CaptureRequest struct {
	// Path of the captured image on local disk.
	ImagePath string `json:"image_path"`
	// scene or object.
	Mode CaptureMode `json:"mode"`
	// Target language code for translation.
	// example: fr
	TargetLanguage string `json:"target_language,omitempty"`
}

// ModelStatus describes one catalog entry plus its on-disk state.
type ModelStatus struct {
	ModelDescriptor
	Downloaded bool               `json:"downloaded"`
	Download   ModelDownloadState `json:"download"`
}

// ModelsResponse wraps the list returned by GET /models.
type ModelsResponse struct {
	Models []ModelStatus `json:"models"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Orchestrator state (loading, camera_ready, ...).
	// example: camera_ready
	State CaptureState `json:"state"`
	// Gateway lifecycle: unloaded, loading, loaded.
	// example: loaded
	GatewayState string `json:"gateway_state"`
	// Id of the currently loaded model, if any.
	LoadedModel string `json:"loaded_model,omitempty"`
	// Bytes used by the models directory.
	DiskUsageBytes int64 `json:"disk_usage_bytes"`
	// Number of persisted cards.
	Cards int `json:"cards"`
	// Last user-visible error, if any.
	LastError string `json:"last_error,omitempty"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Uptime of the process in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// CardsResponse wraps the persisted card list, newest first.
type CardsResponse struct {
	Cards []LearnCard `json:"cards"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: fastvlm-9b
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"400"`
}
