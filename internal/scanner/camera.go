package scanner

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCode means the frame decoded cleanly but contained no symbol.
// It never leaves the decode loop.
var ErrNoCode = errors.New("no code in frame")

// CameraPermissionError ends a device's scanning session until the
// operator grants camera access.
type CameraPermissionError struct {
	Device string
	Err    error
}

func (e *CameraPermissionError) Error() string {
	return fmt.Sprintf("camera permission denied for %s: %v", e.Device, e.Err)
}

func (e *CameraPermissionError) Unwrap() error { return e.Err }

// Camera is the decode-to-text boundary over a physical scanning
// device. DecodeFrame captures one frame and returns the decoded text,
// ErrNoCode when the frame holds no symbol, or a hard I/O error.
type Camera interface {
	DecodeFrame(ctx context.Context) (string, error)
	Release() error
}

// CameraSource hands out cameras. Acquire is the single explicit
// acquisition point; the returned Camera must be released exactly once.
type CameraSource interface {
	Acquire(ctx context.Context) (Camera, error)
}
