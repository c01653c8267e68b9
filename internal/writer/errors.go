package writer

import "errors"

var (
	// ErrProtocol reports calls that violate the anchor/sample ordering:
	// samples before the first anchor, a first anchor not at index 0, or
	// anchors that do not strictly increase.
	ErrProtocol = errors.New("writer protocol violation")
	ErrClosed   = errors.New("writer closed")
	ErrTemplate = errors.New("invalid path template")
)
