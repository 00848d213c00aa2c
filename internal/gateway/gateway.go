// Package gateway serializes access to a single loaded vision-language model
// and translates the engine's callbacks into a typed, strictly ordered event
// stream. At most one model is loaded and one generation runs at a time;
// loading is single-flight so concurrent load requests share one execution.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"lingolens/internal/common/fsutil"
	"lingolens/pkg/types"
)

// State is the gateway lifecycle: Unloaded -> Loading -> Loaded -> Unloaded.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
)

const eventBufSize = 64

type Gateway struct {
	adapter VisionAdapter
	pub     EventPublisher
	log     zerolog.Logger

	// loads collapses concurrent Load calls into one execution; both
	// callers observe the same result and Loaded is reported once.
	loads singleflight.Group

	mu       sync.Mutex
	state    State
	session  VisionSession
	lastLoad *LoadConfig

	genActive bool
	genCancel context.CancelFunc

	// sendMu serializes stream emission with Stop acknowledgement: once
	// Stop returns, no further Token event can be emitted.
	sendMu  sync.Mutex
	stopped bool

	events chan types.StreamEvent
}

func New(adapter VisionAdapter, pub EventPublisher, log zerolog.Logger) *Gateway {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Gateway{
		adapter: adapter,
		pub:     pub,
		log:     log,
		state:   StateUnloaded,
		events:  make(chan types.StreamEvent, eventBufSize),
	}
}

// Events returns the generation stream. It is consumed by a single
// cooperative loop (the orchestrator); per-screen callback registration is
// deliberately not offered.
func (g *Gateway) Events() <-chan types.StreamEvent { return g.events }

// IsReady reports whether the underlying engine completed its own startup.
// Distinct from IsLoaded.
func (g *Gateway) IsReady() bool { return g.adapter.Ready() }

func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) IsLoaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StateLoaded && g.session != nil
}

// LastLoaded returns the most recent successful load configuration. It is
// cleared by Release, so a resume supervisor never reloads a model the user
// explicitly let go of.
func (g *Gateway) LastLoaded() (LoadConfig, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastLoad == nil {
		return LoadConfig{}, false
	}
	return *g.lastLoad, true
}

// Load brings the configured model up. Concurrent calls join the same
// outstanding load and observe one shared result; loading a second model
// releases the first. Failures are returned as Result values with a
// descriptive message; no engine panic escapes this boundary.
func (g *Gateway) Load(ctx context.Context, cfg LoadConfig) types.LoadResult {
	v, _, _ := g.loads.Do("load", func() (any, error) {
		return g.doLoad(ctx, cfg), nil
	})
	return v.(types.LoadResult)
}

func (g *Gateway) doLoad(ctx context.Context, cfg LoadConfig) (res types.LoadResult) {
	defer func() {
		if r := recover(); r != nil {
			g.mu.Lock()
			g.state = StateUnloaded
			g.mu.Unlock()
			res = types.LoadResult{Success: false, Message: fmt.Sprintf("engine panic during load: %v", r)}
			g.pub.Publish(Event{Name: "load_error", Model: cfg.ModelPath, Fields: map[string]any{"error": res.Message}})
		}
	}()

	if err := ctx.Err(); err != nil {
		return types.LoadResult{Success: false, Message: err.Error()}
	}
	if !fsutil.PathExists(cfg.ModelPath) {
		return types.LoadResult{Success: false, Message: "model file not found: " + cfg.ModelPath}
	}
	if cfg.ProjectionPath != "" && !fsutil.PathExists(cfg.ProjectionPath) {
		return types.LoadResult{Success: false, Message: "projection file not found: " + cfg.ProjectionPath}
	}

	g.mu.Lock()
	if g.state == StateLoaded && g.session != nil && g.lastLoad != nil && g.lastLoad.ModelPath == cfg.ModelPath {
		g.mu.Unlock()
		return types.LoadResult{Success: true, Message: "already loaded"}
	}
	// One loaded model at a time: a different model displaces the current one.
	old := g.session
	g.session = nil
	g.lastLoad = nil
	g.state = StateLoading
	g.mu.Unlock()
	if old != nil {
		g.stopGeneration()
		_ = old.Close()
	}

	start := time.Now()
	g.pub.Publish(Event{Name: "load_start", Model: cfg.ModelPath, Fields: map[string]any{}})
	sess, err := g.adapter.Load(cfg)
	if err != nil {
		g.mu.Lock()
		g.state = StateUnloaded
		g.mu.Unlock()
		g.log.Warn().Err(err).Str("model", cfg.ModelPath).Msg("load failed")
		g.pub.Publish(Event{Name: "load_error", Model: cfg.ModelPath, Fields: map[string]any{"error": err.Error()}})
		return types.LoadResult{Success: false, Message: err.Error()}
	}

	g.mu.Lock()
	g.session = sess
	g.lastLoad = &cfg
	g.state = StateLoaded
	g.mu.Unlock()
	g.log.Info().Str("model", cfg.ModelPath).Dur("dur", time.Since(start)).Msg("model loaded")
	g.pub.Publish(Event{Name: "loaded", Model: cfg.ModelPath, Fields: map[string]any{"dur_ms": time.Since(start).Milliseconds()}})
	return types.LoadResult{Success: true}
}

// SubmitImage queues one image+prompt generation. Fire-and-forget: the
// outcome arrives on the event stream, not the return value. Returns false
// when no model is loaded, a generation is already running, or the image is
// missing.
func (g *Gateway) SubmitImage(req DescribeRequest) bool {
	if !fsutil.PathExists(req.ImagePath) {
		return false
	}
	g.mu.Lock()
	if g.state != StateLoaded || g.session == nil || g.genActive {
		g.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.genActive = true
	g.genCancel = cancel
	sess := g.session
	g.mu.Unlock()

	g.sendMu.Lock()
	g.stopped = false
	g.sendMu.Unlock()

	go g.generate(ctx, sess, req)
	return true
}

func (g *Gateway) generate(ctx context.Context, sess VisionSession, req DescribeRequest) {
	defer func() {
		g.mu.Lock()
		g.genActive = false
		g.genCancel = nil
		g.mu.Unlock()
	}()

	start := time.Now()
	var firstTok time.Time
	tokens := 0
	var accum []byte

	onToken := func(tok string) error {
		g.sendMu.Lock()
		if g.stopped {
			g.sendMu.Unlock()
			return context.Canceled
		}
		if tokens == 0 {
			firstTok = time.Now()
		}
		tokens++
		accum = append(accum, tok...)
		g.events <- types.StreamEvent{Kind: types.EventToken, Text: tok}
		g.sendMu.Unlock()
		return nil
	}

	final, err := sess.Describe(ctx, req, onToken)

	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	if g.stopped {
		// Stop was acknowledged: report what was generated so far. No
		// tokens follow a stop, only this single terminal event.
		g.events <- types.StreamEvent{
			Kind:    types.EventComplete,
			Text:    string(accum),
			Profile: profileFor(start, firstTok, tokens, final.Profile),
		}
		return
	}
	if err != nil {
		g.log.Warn().Err(err).Msg("generation failed")
		g.events <- types.StreamEvent{Kind: types.EventError, Message: err.Error()}
		return
	}
	content := final.Content
	if content == "" {
		content = string(accum)
	}
	g.events <- types.StreamEvent{
		Kind:    types.EventComplete,
		Text:    content,
		Profile: profileFor(start, firstTok, tokens, final.Profile),
	}
}

// profileFor prefers engine-reported numbers and fills the rest from wall
// clock observations.
func profileFor(start, firstTok time.Time, tokens int, engine types.PerformanceProfile) *types.PerformanceProfile {
	p := engine
	if p.TTFTMs == 0 && !firstTok.IsZero() {
		p.TTFTMs = firstTok.Sub(start).Milliseconds()
	}
	if p.GeneratedTokens == 0 {
		p.GeneratedTokens = tokens
	}
	if p.DecodeTokPerSec == 0 && tokens > 1 && !firstTok.IsZero() {
		if dur := time.Since(firstTok).Seconds(); dur > 0 {
			p.DecodeTokPerSec = float64(tokens-1) / dur
		}
	}
	return &p
}

// Stop requests that in-flight generation terminate. Once Stop returns, no
// further Token events are emitted; a single terminal Complete with the
// accumulated text follows.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if !g.genActive {
		g.mu.Unlock()
		return
	}
	cancel := g.genCancel
	g.mu.Unlock()

	g.sendMu.Lock()
	g.stopped = true
	g.sendMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (g *Gateway) stopGeneration() {
	g.Stop()
}

// ResetContext clears conversational state between independent capture
// cycles. It must be issued before each new SubmitImage.
func (g *Gateway) ResetContext() error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return notLoadedError{}
	}
	return sess.Reset()
}

// Release tears down the engine instance. Idempotent. The remembered load
// configuration is cleared under the same lock, so a resume check racing an
// explicit release can never reload the model the user just let go of.
func (g *Gateway) Release() {
	g.stopGeneration()
	g.mu.Lock()
	sess := g.session
	g.session = nil
	g.lastLoad = nil
	g.state = StateUnloaded
	g.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
		g.pub.Publish(Event{Name: "released", Fields: map[string]any{}})
	}
}

// ResumeCheck detects "should be loaded but isn't" after the host platform
// reclaimed engine resources (e.g. during a camera hand-off) and reloads the
// remembered configuration, announcing reloading/reloaded lifecycle events.
func (g *Gateway) ResumeCheck(ctx context.Context) {
	g.mu.Lock()
	cfg := g.lastLoad
	alive := g.session != nil && g.session.Alive()
	if cfg == nil || alive {
		g.mu.Unlock()
		return
	}
	// The session object survives but its engine resources are gone; drop
	// it before reloading.
	dead := g.session
	g.session = nil
	g.state = StateUnloaded
	reload := *cfg
	g.mu.Unlock()
	if dead != nil {
		_ = dead.Close()
	}

	g.log.Info().Str("model", reload.ModelPath).Msg("engine lost, reloading")
	g.pub.Publish(Event{Name: "reloading", Model: reload.ModelPath, Fields: map[string]any{}})
	res := g.Load(ctx, reload)
	g.pub.Publish(Event{Name: "reloaded", Model: reload.ModelPath, Fields: map[string]any{"success": res.Success}})
}
