package crawler

import "errors"

var (
	// ErrInvalidURL marks a string that cannot be normalized into an absolute URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidLabel marks a domain label that cannot be used as one directory name.
	ErrInvalidLabel = errors.New("invalid domain label")
	// ErrSessionStart marks a browser process that failed to launch.
	ErrSessionStart = errors.New("browser session start failed")
	// ErrNavigation marks a page load that timed out or failed in transport.
	ErrNavigation = errors.New("navigation failed")
	// ErrCapture marks a screenshot that could not be taken or written.
	ErrCapture = errors.New("capture failed")
)
