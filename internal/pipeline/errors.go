package pipeline

import "errors"

// Fatal errors abort the run after teardown. ErrEvidencePersist and ErrDetection
// are recoverable: they are logged and counted in the Result. ErrRender covers
// annotation and resize failures; it is fatal because the encoder expects every frame.
var (
	ErrSourceOpen      = errors.New("source open failure")
	ErrEncoderLaunch   = errors.New("encoder launch failure")
	ErrEncoderWrite    = errors.New("encoder write failure")
	ErrEncoderExit     = errors.New("encoder exit failure")
	ErrRender          = errors.New("frame render failure")
	ErrEvidencePersist = errors.New("evidence persist failure")
	ErrDetection       = errors.New("detection failure")
)
