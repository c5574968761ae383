package protocol

import "errors"

var (
	ErrMalformed   = errors.New("protocol: malformed packet")
	ErrUnsupported = errors.New("protocol: unsupported command")
)
