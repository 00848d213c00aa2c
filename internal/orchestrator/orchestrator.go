// Package orchestrator drives one capture-to-flashcard cycle at a time
// through a linear user-facing state machine: acquire image, optionally
// segment, infer, translate, present, save or discard. A single goroutine
// consumes the gateway's event stream; engines run on their own goroutines
// and report back through Result values and events, never shared state.
package orchestrator

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lingolens/internal/cards"
	"lingolens/internal/common/fsutil"
	"lingolens/internal/engines"
	"lingolens/internal/gateway"
	"lingolens/pkg/types"
)

// InferenceGateway is the slice of the gateway the orchestrator drives.
type InferenceGateway interface {
	IsLoaded() bool
	ResetContext() error
	SubmitImage(gateway.DescribeRequest) bool
	Stop()
	Events() <-chan types.StreamEvent
}

// Listener observes user-facing progress: state transitions, streamed
// tokens, surfaced errors, saved cards. Callbacks run outside the
// orchestrator's lock; read-only queries back into it are safe, mutating
// calls are not.
type Listener interface {
	OnState(s types.CaptureState)
	OnToken(text string)
	OnError(message string)
	OnCardSaved(card types.LearnCard)
}

type noopListener struct{}

func (noopListener) OnState(types.CaptureState)  {}
func (noopListener) OnToken(string)              {}
func (noopListener) OnError(string)              {}
func (noopListener) OnCardSaved(types.LearnCard) {}

// Config carries the per-deployment knobs of the capture flow.
type Config struct {
	TempDir string
	// Language the model describes images in.
	SourceLanguage string
	// Default translation target; a capture request may override it.
	TargetLanguage string
	ScenePrompt    string
	ObjectPrompt   string
	// Preprocessing contract of the loaded model.
	Hint    types.PreprocessHint
	MaxEdge int
}

const (
	defaultScenePrompt  = "Describe this scene in one short sentence."
	defaultObjectPrompt = "Name the main object in this image in a few words."
)

func (c *Config) applyDefaults() {
	if c.SourceLanguage == "" {
		c.SourceLanguage = "en"
	}
	if c.ScenePrompt == "" {
		c.ScenePrompt = defaultScenePrompt
	}
	if c.ObjectPrompt == "" {
		c.ObjectPrompt = defaultObjectPrompt
	}
	if c.Hint == "" {
		c.Hint = types.PreprocessNone
	}
}

type Orchestrator struct {
	cfg      Config
	gw       InferenceGateway
	seg      *engines.Segmenter
	tr       *engines.Translator
	sp       *engines.Speaker
	store    *cards.Store
	listener Listener
	log      zerolog.Logger

	mu          sync.Mutex
	state       types.CaptureState
	cameraReady bool
	sess        *captureSession
	lastError   string
}

func New(cfg Config, gw InferenceGateway, seg *engines.Segmenter, tr *engines.Translator, sp *engines.Speaker, store *cards.Store, listener Listener, log zerolog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if listener == nil {
		listener = noopListener{}
	}
	return &Orchestrator{
		cfg:      cfg,
		gw:       gw,
		seg:      seg,
		tr:       tr,
		sp:       sp,
		store:    store,
		listener: listener,
		log:      log,
		state:    types.StateLoading,
	}
}

// Run consumes the gateway event stream until ctx is cancelled. It is the
// only consumer; exactly one Run loop per orchestrator.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, okCh := <-o.gw.Events():
			if !okCh {
				return
			}
			switch ev.Kind {
			case types.EventToken:
				o.onToken(ev.Text)
			case types.EventComplete:
				o.onComplete(ctx, ev.Text)
			case types.EventError:
				o.onGenerationError(ev.Message)
			}
		}
	}
}

func (o *Orchestrator) State() types.CaptureState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// SetCameraInitialized records whether frames can be acquired. Captures are
// no-ops until the camera reports ready.
func (o *Orchestrator) SetCameraInitialized(ready bool) {
	o.mu.Lock()
	o.cameraReady = ready
	o.mu.Unlock()
}

// SetInferenceHints updates the preprocessing contract after a different
// model is loaded.
func (o *Orchestrator) SetInferenceHints(hint types.PreprocessHint, maxEdge int) {
	o.mu.Lock()
	o.cfg.Hint = hint
	o.cfg.MaxEdge = maxEdge
	o.mu.Unlock()
}

// Activate moves Loading to CameraReady once a model is loaded and the
// camera is initialized. Safe to call repeatedly.
func (o *Orchestrator) Activate() bool {
	if !o.gw.IsLoaded() {
		return false
	}
	o.mu.Lock()
	if o.state != types.StateLoading || !o.cameraReady {
		ready := o.state == types.StateCameraReady
		o.mu.Unlock()
		return ready
	}
	o.state = types.StateCameraReady
	o.mu.Unlock()
	o.listener.OnState(types.StateCameraReady)
	return true
}

// Capture starts one cycle from an already-acquired frame. Guarded: outside
// CameraReady, or with an uninitialized camera, it is a no-op and returns
// false. Object mode segments first; Scene mode submits the frame directly.
func (o *Orchestrator) Capture(req types.CaptureRequest) bool {
	o.mu.Lock()
	if o.state != types.StateCameraReady || !o.cameraReady {
		o.mu.Unlock()
		return false
	}
	target := req.TargetLanguage
	if target == "" {
		target = o.cfg.TargetLanguage
	}
	sess := &captureSession{
		id:          uuid.NewString(),
		mode:        req.Mode,
		targetLang:  target,
		capturePath: req.ImagePath,
	}
	o.sess = sess
	o.lastError = ""

	if req.Mode == types.ModeObject {
		o.state = types.StateSegmenting
		o.mu.Unlock()
		o.listener.OnState(types.StateSegmenting)
		go o.segmentThenSubmit(sess)
		return true
	}
	o.state = types.StateProcessing
	o.mu.Unlock()
	o.listener.OnState(types.StateProcessing)
	go o.submit(sess)
	return true
}

func (o *Orchestrator) segmentThenSubmit(sess *captureSession) {
	out := o.tempPath(sess.id + "-segmented.png")
	res := o.seg.Segment(context.Background(), sess.capturePath, out)

	o.mu.Lock()
	if o.sess != sess || o.state != types.StateSegmenting {
		// Cancelled while segmenting. Cancel removed the cycle's files
		// before the backend wrote its output; that file is ours to remove.
		o.mu.Unlock()
		if !fsutil.RemoveQuiet(out) {
			o.log.Warn().Str("session", sess.id).Str("path", out).Msg("temp segmented image not removed")
		}
		return
	}
	if !res.OK {
		// No subject is a normal outcome; the cycle ends, not the app.
		// The backend may still have written partial output.
		o.sess = nil
		o.state = types.StateCameraReady
		o.lastError = res.Message
		o.mu.Unlock()
		fsutil.RemoveQuiet(out)
		sess.cleanup(o.log)
		o.listener.OnError(res.Message)
		o.listener.OnState(types.StateCameraReady)
		return
	}
	sess.segmentedPath = res.OutputPath
	o.state = types.StateProcessing
	o.mu.Unlock()
	o.listener.OnState(types.StateProcessing)
	o.submit(sess)
}

// submit resets the gateway context and hands over the session's image.
// Each capture is independent; the reset guarantees no cross-capture
// context leakage.
func (o *Orchestrator) submit(sess *captureSession) {
	if err := o.gw.ResetContext(); err != nil {
		o.failCycle(sess, "reset context: "+err.Error())
		return
	}
	o.mu.Lock()
	hint, maxEdge := o.cfg.Hint, o.cfg.MaxEdge
	o.mu.Unlock()
	accepted := o.gw.SubmitImage(gateway.DescribeRequest{
		ImagePath: sess.finalImage(),
		Prompt:    o.promptFor(sess.mode),
		Hint:      hint,
		MaxEdge:   maxEdge,
	})
	if !accepted {
		o.failCycle(sess, "inference engine rejected the image")
	}
}

func (o *Orchestrator) promptFor(mode types.CaptureMode) string {
	if mode == types.ModeObject {
		return o.cfg.ObjectPrompt
	}
	return o.cfg.ScenePrompt
}

func (o *Orchestrator) onToken(text string) {
	o.mu.Lock()
	active := o.state == types.StateProcessing && o.sess != nil
	o.mu.Unlock()
	if active {
		o.listener.OnToken(text)
	}
}

func (o *Orchestrator) onComplete(ctx context.Context, raw string) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || o.state != types.StateProcessing {
		// Terminal event from a cycle that was cancelled meanwhile.
		o.mu.Unlock()
		return
	}
	sess.sourceText = StripLabelPrefix(raw)
	o.state = types.StateTranslating
	o.mu.Unlock()
	o.listener.OnState(types.StateTranslating)

	translated := o.translate(ctx, sess)

	o.mu.Lock()
	if o.sess != sess || o.state != types.StateTranslating {
		o.mu.Unlock()
		return
	}
	sess.targetText = translated
	o.state = types.StateShowingCard
	targetLang := sess.targetLang
	o.mu.Unlock()
	o.listener.OnState(types.StateShowingCard)

	if translated != "" {
		o.sp.Speak(translated, targetLang)
	}
}

// translate falls through to the source text when the translator isn't
// ready for the pair, the source is empty, or translation fails. The user
// always sees some result.
func (o *Orchestrator) translate(ctx context.Context, sess *captureSession) string {
	text := sess.sourceText
	if text == "" {
		return text
	}
	if !o.tr.IsReadyFor(o.cfg.SourceLanguage, sess.targetLang) {
		return text
	}
	res := o.tr.Translate(ctx, text)
	if !res.OK {
		o.log.Warn().Str("error", res.Message).Msg("translation failed, showing source text")
		return text
	}
	return res.Text
}

func (o *Orchestrator) onGenerationError(message string) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || o.state != types.StateProcessing {
		o.mu.Unlock()
		return
	}
	o.sess = nil
	o.state = types.StateCameraReady
	o.lastError = message
	o.mu.Unlock()
	sess.cleanup(o.log)
	o.log.Warn().Str("error", message).Msg("generation failed, cycle aborted")
	o.listener.OnError(message)
	o.listener.OnState(types.StateCameraReady)
}

func (o *Orchestrator) failCycle(sess *captureSession, message string) {
	o.mu.Lock()
	if o.sess != sess {
		o.mu.Unlock()
		return
	}
	o.sess = nil
	o.state = types.StateCameraReady
	o.lastError = message
	o.mu.Unlock()
	sess.cleanup(o.log)
	o.listener.OnError(message)
	o.listener.OnState(types.StateCameraReady)
}

// Current returns the texts of the card being shown. ok is false outside
// the ShowingCard state.
func (o *Orchestrator) Current() (sourceText, targetText string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil || o.state != types.StateShowingCard {
		return "", "", false
	}
	return o.sess.sourceText, o.sess.targetText, true
}

// Save persists the shown result as a LearnCard and returns to CameraReady.
// The card copies the session's final image into durable storage; the
// cycle's temp files are then cleaned up.
func (o *Orchestrator) Save() (types.LearnCard, error) {
	o.mu.Lock()
	sess := o.sess
	if sess == nil || o.state != types.StateShowingCard {
		o.mu.Unlock()
		return types.LearnCard{}, notShowingError{}
	}
	o.mu.Unlock()

	card, err := o.store.CreateCard(sess.finalImage(), sess.sourceText, sess.targetText, sess.targetLang)
	if err != nil {
		// Persisting failed; stay in ShowingCard so the user can retry or
		// cancel explicitly.
		return types.LearnCard{}, err
	}

	o.mu.Lock()
	if o.sess == sess {
		o.sess = nil
		o.state = types.StateCameraReady
	}
	o.mu.Unlock()
	sess.cleanup(o.log)
	o.listener.OnCardSaved(card)
	o.listener.OnState(types.StateCameraReady)
	return card, nil
}

// Cancel abandons the current cycle from any mid-cycle state: stops
// generation and speech, removes the cycle's temp files, and returns to
// CameraReady. No-op when no cycle is active.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	sess := o.sess
	state := o.state
	if sess == nil {
		o.mu.Unlock()
		return
	}
	o.sess = nil
	o.state = types.StateCameraReady
	o.mu.Unlock()

	if state == types.StateProcessing {
		o.gw.Stop()
	}
	o.sp.Stop()
	sess.cleanup(o.log)
	o.listener.OnState(types.StateCameraReady)
}

func (o *Orchestrator) tempPath(name string) string {
	return filepath.Join(o.cfg.TempDir, name)
}

type notShowingError struct{}

func (notShowingError) Error() string { return "no card is being shown" }

// IsNotShowing reports whether err means Save was called outside the
// ShowingCard state.
func IsNotShowing(err error) bool {
	_, ok := err.(notShowingError)
	return ok
}
