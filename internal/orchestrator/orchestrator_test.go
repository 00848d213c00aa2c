package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lingolens/internal/cards"
	"lingolens/internal/engines"
	"lingolens/internal/gateway"
	"lingolens/pkg/types"
)

type fakeGateway struct {
	mu      sync.Mutex
	loaded  bool
	accept  bool
	resets  int
	stops   int
	submits []gateway.DescribeRequest
	events  chan types.StreamEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{loaded: true, accept: true, events: make(chan types.StreamEvent, 16)}
}

func (f *fakeGateway) IsLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *fakeGateway) ResetContext() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeGateway) SubmitImage(req gateway.DescribeRequest) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	return f.accept
}

func (f *fakeGateway) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeGateway) Events() <-chan types.StreamEvent { return f.events }

func (f *fakeGateway) snapshot() (resets, stops int, submits []gateway.DescribeRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets, f.stops, append([]gateway.DescribeRequest(nil), f.submits...)
}

type fakeSegBackend struct {
	found bool
}

func (f *fakeSegBackend) Init(context.Context) error { return nil }

func (f *fakeSegBackend) Segment(_ context.Context, _, out string) (bool, error) {
	if f.found {
		if err := os.WriteFile(out, []byte("segmented"), 0o644); err != nil {
			return false, err
		}
	}
	return f.found, nil
}

func (f *fakeSegBackend) Close() error { return nil }

// blockingSegBackend holds Segment open until released, then writes its
// output. Lets tests land Cancel while segmentation is in flight.
type blockingSegBackend struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingSegBackend() *blockingSegBackend {
	return &blockingSegBackend{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSegBackend) Init(context.Context) error { return nil }

func (b *blockingSegBackend) Segment(_ context.Context, _, out string) (bool, error) {
	close(b.started)
	<-b.release
	if err := os.WriteFile(out, []byte("segmented"), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (b *blockingSegBackend) Close() error { return nil }

type prefixTranslatorBackend struct{}

func (prefixTranslatorBackend) Prepare(context.Context, engines.LanguagePair, engines.NetworkClass) error {
	return nil
}

func (prefixTranslatorBackend) Translate(_ context.Context, pair engines.LanguagePair, text string) (string, error) {
	return "[" + pair.Target + "] " + text, nil
}

func (prefixTranslatorBackend) Close() error { return nil }

type recListener struct {
	mu     sync.Mutex
	states []types.CaptureState
	tokens []string
	errors []string
	saved  []types.LearnCard
}

func (l *recListener) OnState(s types.CaptureState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *recListener) OnToken(t string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, t)
}

func (l *recListener) OnError(m string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, m)
}

func (l *recListener) OnCardSaved(c types.LearnCard) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved = append(l.saved, c)
}

func (l *recListener) stateSeq() []types.CaptureState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.CaptureState(nil), l.states...)
}

type fixture struct {
	o        *Orchestrator
	gw       *fakeGateway
	store    *cards.Store
	listener *recListener
	tempDir  string
	stopRun  context.CancelFunc
}

func newFixture(t *testing.T, segFound, translatorReady bool) *fixture {
	return newFixtureWithBackend(t, &fakeSegBackend{found: segFound}, translatorReady)
}

func newFixtureWithBackend(t *testing.T, segBackend engines.SegmenterBackend, translatorReady bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := cards.Open(filepath.Join(dir, "cards.json"), filepath.Join(dir, "images"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	gw := newFakeGateway()
	seg := engines.NewSegmenter(segBackend, zerolog.Nop())
	tr := engines.NewTranslator(prefixTranslatorBackend{}, zerolog.Nop())
	if translatorReady {
		if res := tr.Init(context.Background(), "en", "fr", engines.NetworkUnmetered); !res.OK {
			t.Fatalf("translator init: %s", res.Message)
		}
	}
	sp := engines.NewSpeaker(engines.NoopSpeakerBackend{}, nil, zerolog.Nop())
	listener := &recListener{}

	o := New(Config{
		TempDir:        dir,
		SourceLanguage: "en",
		TargetLanguage: "fr",
	}, gw, seg, tr, sp, store, listener, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	t.Cleanup(cancel)

	o.SetCameraInitialized(true)
	if !o.Activate() {
		t.Fatal("activate failed")
	}
	return &fixture{o: o, gw: gw, store: store, listener: listener, tempDir: dir, stopRun: cancel}
}

func (f *fixture) captureFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(f.tempDir, "capture.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitState(t *testing.T, o *Orchestrator, want types.CaptureState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", o.State(), want)
}

func waitSubmit(t *testing.T, gw *fakeGateway) gateway.DescribeRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, submits := gw.snapshot(); len(submits) > 0 {
			return submits[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no image submitted in time")
	return gateway.DescribeRequest{}
}

func TestSceneCycleSkipsSegmenting(t *testing.T) {
	f := newFixture(t, false, true)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture rejected")
	}
	waitSubmit(t, f.gw)

	f.gw.events <- types.StreamEvent{Kind: types.EventToken, Text: "a "}
	f.gw.events <- types.StreamEvent{Kind: types.EventToken, Text: "cat"}
	f.gw.events <- types.StreamEvent{Kind: types.EventComplete, Text: "Output: a sleeping cat"}
	waitState(t, f.o, types.StateShowingCard)

	seq := f.listener.stateSeq()
	want := []types.CaptureState{
		types.StateCameraReady,
		types.StateProcessing,
		types.StateTranslating,
		types.StateShowingCard,
	}
	if len(seq) != len(want) {
		t.Fatalf("state sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("state[%d] = %s, want %s", i, seq[i], want[i])
		}
	}

	card, err := f.o.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if card.SourceText != "a sleeping cat" {
		t.Fatalf("source text = %q", card.SourceText)
	}
	if card.TargetText != "[fr] a sleeping cat" {
		t.Fatalf("target text = %q", card.TargetText)
	}
	if card.TargetLanguageCode != "fr" {
		t.Fatalf("target lang = %q", card.TargetLanguageCode)
	}
	if got := f.store.List(); len(got) != 1 || got[0].ID != card.ID {
		t.Fatalf("card not at index 0: %+v", got)
	}
	// Temp capture cleaned up, durable copy kept.
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("temp capture not removed after save")
	}
	if _, err := os.Stat(card.ImagePath); err != nil {
		t.Fatalf("card image missing: %v", err)
	}
	waitState(t, f.o, types.StateCameraReady)
}

func TestObjectModeSubmitsSegmentedImage(t *testing.T) {
	f := newFixture(t, true, false)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeObject}) {
		t.Fatal("capture rejected")
	}
	req := waitSubmit(t, f.gw)
	if req.ImagePath == img {
		t.Fatal("object mode must submit the segmented image, not the raw capture")
	}
	if _, err := os.Stat(req.ImagePath); err != nil {
		t.Fatalf("segmented image missing: %v", err)
	}
	resets, _, _ := f.gw.snapshot()
	if resets != 1 {
		t.Fatalf("resets = %d, want 1 before submit", resets)
	}
}

func TestObjectModeSegmentationFailureAborts(t *testing.T) {
	f := newFixture(t, false, false)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeObject}) {
		t.Fatal("capture rejected")
	}
	waitState(t, f.o, types.StateCameraReady)

	seq := f.listener.stateSeq()
	for _, s := range seq {
		if s == types.StateProcessing {
			t.Fatal("processing must not be entered after failed segmentation")
		}
	}
	if seq[len(seq)-1] != types.StateCameraReady {
		t.Fatalf("final state = %s", seq[len(seq)-1])
	}
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("temp capture not removed")
	}
	if _, _, submits := f.gw.snapshot(); len(submits) != 0 {
		t.Fatal("nothing must be submitted after failed segmentation")
	}
	if f.store.Count() != 0 {
		t.Fatal("card store must be unchanged")
	}
}

func TestCaptureGuarded(t *testing.T) {
	f := newFixture(t, false, false)
	img := f.captureFile(t)

	// Uninitialized camera.
	f.o.SetCameraInitialized(false)
	if f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture must be a no-op with uninitialized camera")
	}
	f.o.SetCameraInitialized(true)

	// Mid-cycle.
	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("first capture rejected")
	}
	if f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture must be a no-op outside CameraReady")
	}
}

func TestCancelMidCycleCleansUp(t *testing.T) {
	f := newFixture(t, false, true)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture rejected")
	}
	waitSubmit(t, f.gw)

	f.o.Cancel()
	waitState(t, f.o, types.StateCameraReady)
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("temp capture not removed on cancel")
	}
	if _, stops, _ := f.gw.snapshot(); stops != 1 {
		t.Fatal("generation must be stopped on cancel during processing")
	}
	if f.store.Count() != 0 {
		t.Fatal("card store must be unchanged by cancel")
	}

	// A straggling terminal event from the cancelled cycle is ignored.
	f.gw.events <- types.StreamEvent{Kind: types.EventComplete, Text: "late"}
	time.Sleep(50 * time.Millisecond)
	if f.o.State() != types.StateCameraReady {
		t.Fatalf("state = %s after stale event", f.o.State())
	}
}

func TestCancelDuringSegmentationRemovesSegmentedOutput(t *testing.T) {
	backend := newBlockingSegBackend()
	f := newFixtureWithBackend(t, backend, false)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeObject}) {
		t.Fatal("capture rejected")
	}
	<-backend.started

	f.o.Cancel()
	waitState(t, f.o, types.StateCameraReady)
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("temp capture not removed on cancel")
	}

	// The abandoned segmentation writes its output after Cancel already
	// cleaned up; that file must be removed too.
	close(backend.release)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(segmentedFiles(t, f.tempDir)) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if leftover := segmentedFiles(t, f.tempDir); len(leftover) != 0 {
		t.Fatalf("segmented temp files leaked after cancel: %v", leftover)
	}
	if _, _, submits := f.gw.snapshot(); len(submits) != 0 {
		t.Fatal("nothing must be submitted after a cancelled segmentation")
	}
}

func segmentedFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*-segmented.png"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestTranslatorUnreadyDuplicatesSourceText(t *testing.T) {
	f := newFixture(t, false, false)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture rejected")
	}
	waitSubmit(t, f.gw)
	f.gw.events <- types.StreamEvent{Kind: types.EventComplete, Text: "a sleeping cat"}
	waitState(t, f.o, types.StateShowingCard)

	card, err := f.o.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if card.TargetText != card.SourceText {
		t.Fatalf("fallback must duplicate source text, got %q vs %q", card.TargetText, card.SourceText)
	}
}

func TestGenerationErrorReturnsToCameraReady(t *testing.T) {
	f := newFixture(t, false, true)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture rejected")
	}
	waitSubmit(t, f.gw)
	f.gw.events <- types.StreamEvent{Kind: types.EventError, Message: "engine fault"}
	waitState(t, f.o, types.StateCameraReady)

	if f.o.LastError() != "engine fault" {
		t.Fatalf("last error = %q", f.o.LastError())
	}
	if _, err := os.Stat(img); !os.IsNotExist(err) {
		t.Fatal("temp capture not removed after error")
	}
	seq := f.listener.stateSeq()
	for _, s := range seq {
		if s == types.StateTranslating || s == types.StateShowingCard {
			t.Fatalf("error must skip translation/showing, sequence %v", seq)
		}
	}
}

func TestSaveOutsideShowingCard(t *testing.T) {
	f := newFixture(t, false, false)
	if _, err := f.o.Save(); !IsNotShowing(err) {
		t.Fatalf("want not-showing error, got %v", err)
	}
}

func TestTokensForwardedDuringProcessing(t *testing.T) {
	f := newFixture(t, false, false)
	img := f.captureFile(t)

	if !f.o.Capture(types.CaptureRequest{ImagePath: img, Mode: types.ModeScene}) {
		t.Fatal("capture rejected")
	}
	waitSubmit(t, f.gw)
	f.gw.events <- types.StreamEvent{Kind: types.EventToken, Text: "a"}
	f.gw.events <- types.StreamEvent{Kind: types.EventToken, Text: "b"}
	f.gw.events <- types.StreamEvent{Kind: types.EventComplete, Text: "ab"}
	waitState(t, f.o, types.StateShowingCard)

	f.listener.mu.Lock()
	got := append([]string(nil), f.listener.tokens...)
	f.listener.mu.Unlock()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("tokens = %v", got)
	}
}
