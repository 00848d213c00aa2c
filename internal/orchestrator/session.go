package orchestrator

import (
	"github.com/rs/zerolog"

	"lingolens/internal/common/fsutil"
	"lingolens/pkg/types"
)

// captureSession is one capture-to-flashcard cycle. It owns the temp files
// created along the way; cleanup on save or cancel is its responsibility.
type captureSession struct {
	id            string
	mode          types.CaptureMode
	targetLang    string
	capturePath   string
	segmentedPath string
	sourceText    string
	targetText    string
}

// finalImage is the image the user actually saw: the segmented cut-out when
// one exists, the raw capture otherwise.
func (s *captureSession) finalImage() string {
	if s.segmentedPath != "" {
		return s.segmentedPath
	}
	return s.capturePath
}

// cleanup removes the cycle's temp files. Failures are logged and swallowed;
// cleanup never aborts the flow that triggered it.
func (s *captureSession) cleanup(log zerolog.Logger) {
	if !fsutil.RemoveQuiet(s.capturePath) {
		log.Warn().Str("session", s.id).Str("path", s.capturePath).Msg("temp capture not removed")
	}
	if s.segmentedPath != "" && !fsutil.RemoveQuiet(s.segmentedPath) {
		log.Warn().Str("session", s.id).Str("path", s.segmentedPath).Msg("temp segmented image not removed")
	}
}
