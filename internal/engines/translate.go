package engines

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// NetworkClass tells the translation backend whether pulling language packs
// over the network is acceptable right now.
type NetworkClass string

const (
	NetworkUnmetered NetworkClass = "unmetered"
	NetworkMetered   NetworkClass = "metered"
	NetworkOffline   NetworkClass = "offline"
)

// LanguagePair identifies a source->target translation direction.
type LanguagePair struct {
	Source string
	Target string
}

func (p LanguagePair) String() string { return p.Source + "->" + p.Target }

// TranslatorBackend is the contract to the on-device translation engine.
type TranslatorBackend interface {
	// Prepare downloads or loads the language pack for the pair. The
	// network class bounds what Prepare may fetch.
	Prepare(ctx context.Context, pair LanguagePair, network NetworkClass) error
	Translate(ctx context.Context, pair LanguagePair, text string) (string, error)
	Close() error
}

// Translator manages one active language pair at a time. Init for a new
// pair supersedes the previous one; readiness is tracked per pair, so a
// Translate issued against a half-initialized pair fails cleanly instead
// of translating through the wrong direction.
type Translator struct {
	backend TranslatorBackend
	log     zerolog.Logger

	mu    sync.Mutex
	pair  LanguagePair
	ready bool
	epoch uint64
}

func NewTranslator(backend TranslatorBackend, log zerolog.Logger) *Translator {
	return &Translator{backend: backend, log: log}
}

// Init prepares the given pair, superseding any prior pair. Preparation
// runs synchronously; a concurrent Init for a different pair invalidates
// this one, and the stale result is discarded.
func (t *Translator) Init(ctx context.Context, source, target string, network NetworkClass) Result {
	source = strings.ToLower(strings.TrimSpace(source))
	target = strings.ToLower(strings.TrimSpace(target))
	if source == "" || target == "" {
		return fail("language pair must name both source and target")
	}
	pair := LanguagePair{Source: source, Target: target}

	t.mu.Lock()
	if t.ready && t.pair == pair {
		t.mu.Unlock()
		return ok()
	}
	t.epoch++
	myEpoch := t.epoch
	t.pair = pair
	t.ready = false
	t.mu.Unlock()

	err := t.backend.Prepare(ctx, pair, network)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != myEpoch {
		// A newer Init took over while we prepared.
		return fail("superseded by a newer language pair")
	}
	if err != nil {
		t.log.Warn().Err(err).Str("pair", pair.String()).Msg("translator init failed")
		return failErr(err)
	}
	t.ready = true
	t.log.Info().Str("pair", pair.String()).Msg("translator ready")
	return ok()
}

// IsReadyFor reports whether the exact pair is prepared. Readiness for one
// pair says nothing about another.
func (t *Translator) IsReadyFor(source, target string) bool {
	source = strings.ToLower(strings.TrimSpace(source))
	target = strings.ToLower(strings.TrimSpace(target))
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready && t.pair == (LanguagePair{Source: source, Target: target})
}

// Translate runs the active pair over text. Fails (rather than guessing)
// when no pair is ready.
func (t *Translator) Translate(ctx context.Context, text string) TranslateResult {
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return TranslateResult{Result: fail("no language pair prepared")}
	}
	pair := t.pair
	t.mu.Unlock()

	out, err := t.backend.Translate(ctx, pair, text)
	if err != nil {
		return TranslateResult{Result: failErr(err)}
	}
	return TranslateResult{Result: ok(), Text: out}
}

// Release drops the prepared pair and closes the backend.
func (t *Translator) Release() {
	t.mu.Lock()
	t.ready = false
	t.epoch++
	t.mu.Unlock()
	if err := t.backend.Close(); err != nil {
		t.log.Warn().Err(err).Msg("translator close failed")
	}
}
