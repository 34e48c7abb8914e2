package service

import "errors"

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrAlreadyProcessing   = errors.New("stream is already being processed")
	ErrAlreadyRunning      = errors.New("stream is already running")
	ErrNotRunning          = errors.New("stream is not running")
	ErrStreamNotFound      = errors.New("stream not found")
	ErrInvalidState        = errors.New("stream is not paused")
	ErrUnsupportedFormat   = errors.New("unsupported format")
)
