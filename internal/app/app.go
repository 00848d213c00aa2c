// Package app is the composition root: it constructs one instance of every
// long-lived component (asset store, download manager, inference gateway,
// engine façades, orchestrator, card store) and exposes the operations the
// control surface calls. Components never reach each other through globals;
// everything is wired here and handed down by reference.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingolens/internal/assets"
	"lingolens/internal/cards"
	"lingolens/internal/catalog"
	"lingolens/internal/common/fsutil"
	"lingolens/internal/config"
	"lingolens/internal/download"
	"lingolens/internal/engines"
	"lingolens/internal/gateway"
	"lingolens/internal/orchestrator"
	"lingolens/pkg/types"
)

const (
	defaultTargetLanguage = "fr"
	defaultClientID       = "lingolens/0.1"
	sourceLanguage        = "en"

	engineCtxSize = 4096

	// resumeInterval paces the check for engine resources reclaimed by the
	// host while the process was backgrounded.
	resumeInterval = 30 * time.Second
)

type App struct {
	cfg     config.Config
	catalog []types.ModelDescriptor
	store   *assets.Store
	dl      *download.Manager
	gw      *gateway.Gateway
	orch    *orchestrator.Orchestrator
	cards   *cards.Store
	seg     *engines.Segmenter
	tr      *engines.Translator
	sp      *engines.Speaker
	log     zerolog.Logger
	started time.Time

	mu       sync.Mutex
	loadedID string
	stream   *captureStream
}

// New builds the full component graph from configuration. Engine backends
// default to the in-process stand-ins; the llama adapter is selected by
// build tag.
func New(cfg config.Config, log zerolog.Logger) (*App, error) {
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	cat := catalog.Builtin()
	if cfg.CatalogFile != "" {
		extra, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogFile, err)
		}
		cat = catalog.Merge(cat, extra)
	}

	store := assets.NewStore(cfg.ModelsDir)
	cardStore, err := cards.Open(cfg.CardsFile, cfg.CardImagesDir, log)
	if err != nil {
		return nil, fmt.Errorf("open card store: %w", err)
	}

	a := &App{
		cfg:     cfg,
		catalog: cat,
		store:   store,
		dl:      download.NewManager(store, cfg.HubBaseURL, cfg.ClientID, log),
		cards:   cardStore,
		seg:     engines.NewSegmenter(engines.NoopSegmenterBackend{}, log),
		tr:      engines.NewTranslator(engines.NoopTranslatorBackend{}, log),
		sp:      engines.NewSpeaker(engines.NoopSpeakerBackend{}, nil, log),
		log:     log,
		started: time.Now(),
	}

	adapter := gateway.NewLlamaVisionAdapter(engineCtxSize, runtime.NumCPU())
	a.gw = gateway.New(adapter, logPublisher{log: log}, log)
	a.orch = orchestrator.New(orchestrator.Config{
		TempDir:        cfg.TempDir,
		SourceLanguage: sourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
	}, a.gw, a.seg, a.tr, a.sp, cardStore, a, log)
	return a, nil
}

func applyDefaults(cfg *config.Config) error {
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "~/.lingolens/models"
	}
	if cfg.CardsFile == "" {
		cfg.CardsFile = "~/.lingolens/cards.json"
	}
	if cfg.CardImagesDir == "" {
		cfg.CardImagesDir = "~/.lingolens/card-images"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "lingolens")
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = defaultTargetLanguage
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID
	}
	for _, p := range []*string{&cfg.ModelsDir, &cfg.CardsFile, &cfg.CardImagesDir, &cfg.TempDir, &cfg.CatalogFile} {
		expanded, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Run starts the background loops: the orchestrator's event consumer, engine
// warmup, translator preparation, and the resume supervisor. It returns
// immediately; the loops stop when ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	go a.orch.Run(ctx)

	// Frames arrive over the control surface, so the "camera" is ready as
	// soon as we can accept requests.
	a.orch.SetCameraInitialized(true)

	go a.seg.Warmup(ctx)
	go func() {
		if res := a.tr.Init(ctx, sourceLanguage, a.cfg.TargetLanguage, engines.NetworkUnmetered); !res.OK {
			a.log.Warn().Str("error", res.Message).Msg("translator not ready, captures will show source text")
		}
	}()
	go a.resumeLoop(ctx)
}

func (a *App) resumeLoop(ctx context.Context) {
	t := time.NewTicker(resumeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.gw.ResumeCheck(ctx)
		}
	}
}

// Close releases the engines. Safe to call once at shutdown.
func (a *App) Close() {
	a.orch.Cancel()
	a.gw.Release()
	a.seg.Release()
	a.tr.Release()
	a.sp.Release()
}

func (a *App) Ready() bool {
	return a.orch.State() != types.StateLoading
}

func (a *App) Status() types.StatusResponse {
	a.mu.Lock()
	loaded := a.loadedID
	a.mu.Unlock()
	return types.StatusResponse{
		State:          a.orch.State(),
		GatewayState:   string(a.gw.State()),
		LoadedModel:    loaded,
		DiskUsageBytes: a.store.TotalDiskUsage(),
		Cards:          a.cards.Count(),
		LastError:      a.orch.LastError(),
		ServerTimeUnix: time.Now().Unix(),
		UptimeSeconds:  int64(time.Since(a.started).Seconds()),
	}
}

func (a *App) ListModels() []types.ModelStatus {
	out := make([]types.ModelStatus, 0, len(a.catalog))
	for _, d := range a.catalog {
		out = append(out, types.ModelStatus{
			ModelDescriptor: d,
			Downloaded:      a.store.IsDownloaded(d),
			Download:        a.dl.State(d),
		})
	}
	return out
}

// Download transfers the model's file set, streaming progress snapshots as
// NDJSON to w. It blocks until the download finishes, fails, or is
// cancelled.
func (a *App) Download(ctx context.Context, modelID string, w io.Writer, flush func()) error {
	d, ok := catalog.ByID(a.catalog, modelID)
	if !ok {
		return modelNotFoundError{id: modelID}
	}
	var wmu sync.Mutex
	enc := json.NewEncoder(w)
	cb := download.Callbacks{
		OnProgress: func(st types.ModelDownloadState) {
			wmu.Lock()
			_ = enc.Encode(st)
			if flush != nil {
				flush()
			}
			wmu.Unlock()
		},
	}
	return a.dl.Download(ctx, d, cb)
}

// CancelDownload cancels the active download if it belongs to modelID.
func (a *App) CancelDownload(modelID string) {
	if active, ok := a.dl.Active(); ok && active == modelID {
		a.dl.Cancel()
	}
}

// Load resolves the requested model against the catalog and asset store and
// brings it up on the gateway. A structured failure is a value, not an
// error; errors are reserved for unknown model ids.
func (a *App) Load(ctx context.Context, req types.LoadRequest) (types.LoadResult, error) {
	id := req.Model
	if id == "" {
		id = a.cfg.DefaultModel
	}
	d, ok := catalog.ByID(a.catalog, id)
	if !ok {
		return types.LoadResult{}, modelNotFoundError{id: id}
	}
	res := a.gw.Load(ctx, gateway.LoadConfig{
		ModelPath:      a.store.MainFilePath(d),
		ProjectionPath: a.store.ProjectionFilePath(d),
		BackendID:      req.BackendID,
		DeviceID:       req.DeviceID,
		GPULayers:      req.GPULayers,
	})
	if res.Success {
		a.mu.Lock()
		a.loadedID = d.ID
		a.mu.Unlock()
		a.orch.SetInferenceHints(hintFor(d), d.MaxEdge)
		a.orch.Activate()
	}
	return res, nil
}

// Release tears down the loaded model.
func (a *App) Release() {
	a.gw.Release()
	a.mu.Lock()
	a.loadedID = ""
	a.mu.Unlock()
}

func hintFor(d types.ModelDescriptor) types.PreprocessHint {
	if d.Engine == types.EngineNPU {
		return types.PreprocessNPU
	}
	if d.MaxEdge > 0 {
		return types.PreprocessResize
	}
	return types.PreprocessNone
}

// Capture starts one capture cycle and streams its progress as NDJSON
// lines to w until the cycle reaches ShowingCard, aborts, or the client
// disconnects. One stream at a time; the cycle itself outlives a dropped
// connection.
func (a *App) Capture(ctx context.Context, req types.CaptureRequest, w io.Writer, flush func()) error {
	st := newCaptureStream(w, flush)
	a.mu.Lock()
	if a.stream != nil {
		a.mu.Unlock()
		return captureBusyError{}
	}
	a.stream = st
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.stream == st {
			a.stream = nil
		}
		a.mu.Unlock()
	}()

	if !a.orch.Capture(req) {
		return captureBusyError{}
	}
	select {
	case <-st.done:
	case <-ctx.Done():
	}
	return nil
}

func (a *App) SaveCard() (types.LearnCard, error) {
	return a.orch.Save()
}

func (a *App) CancelCapture() {
	a.orch.Cancel()
}

func (a *App) ListCards() []types.LearnCard {
	return a.cards.List()
}

func (a *App) DeleteCard(id string) error {
	return a.cards.Delete(id)
}

// logPublisher routes gateway lifecycle events into the structured log.
type logPublisher struct{ log zerolog.Logger }

func (p logPublisher) Publish(ev gateway.Event) {
	p.log.Info().Str("event", ev.Name).Str("model", ev.Model).Fields(ev.Fields).Msg("gateway event")
}
