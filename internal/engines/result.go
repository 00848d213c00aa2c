// Package engines wraps the auxiliary engines (subject segmentation, machine
// translation, speech synthesis) behind uniform init/ready/invoke/release
// façades. Engine-layer errors are converted to Result values at this
// boundary; nothing below it throws past the façade.
package engines

// Result is the uniform success/message outcome shared by the façades.
type Result struct {
	OK      bool
	Message string
}

func ok() Result               { return Result{OK: true} }
func fail(msg string) Result   { return Result{OK: false, Message: msg} }
func failErr(err error) Result { return Result{OK: false, Message: err.Error()} }

// SegmentResult carries the segmented image path on success.
type SegmentResult struct {
	Result
	OutputPath string
}

// TranslateResult carries the translated text on success.
type TranslateResult struct {
	Result
	Text string
}
