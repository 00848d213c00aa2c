package app

import (
	"encoding/json"
	"io"
	"sync"

	"lingolens/pkg/types"
)

// captureStream fans the orchestrator's progress out to one NDJSON client.
// Writes come from orchestrator goroutines while the request handler waits
// on done; the mutex keeps lines whole.
type captureStream struct {
	mu    sync.Mutex
	enc   *json.Encoder
	flush func()
	done  chan struct{}
	ended bool
}

func newCaptureStream(w io.Writer, flush func()) *captureStream {
	return &captureStream{enc: json.NewEncoder(w), flush: flush, done: make(chan struct{})}
}

// send drops lines once the stream has ended: the response writer is dead
// after the waiting handler returns, and it returns only after end.
func (s *captureStream) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	_ = s.enc.Encode(v)
	if s.flush != nil {
		s.flush()
	}
}

func (s *captureStream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

// captureLine is one NDJSON element of the capture progress stream.
type captureLine struct {
	State      types.CaptureState `json:"state,omitempty"`
	Token      string             `json:"token,omitempty"`
	Error      string             `json:"error,omitempty"`
	Done       bool               `json:"done,omitempty"`
	SourceText string             `json:"source_text,omitempty"`
	TargetText string             `json:"target_text,omitempty"`
}

func (a *App) currentStream() *captureStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream
}

// OnState implements orchestrator.Listener. Reaching ShowingCard or falling
// back to CameraReady ends the stream; the final line carries the result
// texts when there are any.
func (a *App) OnState(s types.CaptureState) {
	st := a.currentStream()
	if st == nil {
		return
	}
	switch s {
	case types.StateShowingCard:
		src, dst, ok := a.orch.Current()
		if ok {
			st.send(captureLine{State: s, Done: true, SourceText: src, TargetText: dst})
		} else {
			st.send(captureLine{State: s, Done: true})
		}
		st.end()
	case types.StateCameraReady:
		st.send(captureLine{State: s, Done: true})
		st.end()
	default:
		st.send(captureLine{State: s})
	}
}

func (a *App) OnToken(text string) {
	if st := a.currentStream(); st != nil {
		st.send(captureLine{Token: text})
	}
}

func (a *App) OnError(message string) {
	if st := a.currentStream(); st != nil {
		st.send(captureLine{Error: message})
	}
}

func (a *App) OnCardSaved(card types.LearnCard) {
	a.log.Info().Str("card", card.ID).Str("lang", card.TargetLanguageCode).Msg("card saved")
}
