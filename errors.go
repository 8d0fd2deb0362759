package upright

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stage sentinels. Every error returned by Normalize that is not a context
// error matches exactly one of them with errors.Is.
var (
	// ErrValidation is returned for missing input, unsupported MIME types and
	// invalid options. It is reported before any decoding starts.
	ErrValidation = errors.New("validation failed")

	// ErrDecode is returned when the input bytes are not a decodable image.
	ErrDecode = errors.New("decode failed")

	// ErrRender is returned when the canvas cannot be produced.
	ErrRender = errors.New("render failed")

	// ErrEncode is returned when the encoder fails.
	ErrEncode = errors.New("encode failed")
)

// PipelineError records the stage an invocation failed in.
type PipelineError struct {
	Stage error
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upright: %v", e.Stage)
	}
	return fmt.Sprintf("upright: %v: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Is matches the stage sentinel.
func (e *PipelineError) Is(target error) bool { return target == e.Stage }

func stageError(stage, err error) error {
	return &PipelineError{Stage: stage, Err: err}
}

func validationf(format string, args ...any) error {
	return stageError(ErrValidation, errors.Errorf(format, args...))
}
