package decode

import "errors"

var (
	errReleased   = errors.New("scanner released")
	errNotEnabled = errors.New("scanner not enabled")
)
