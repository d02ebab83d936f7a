//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// OpenCdev returns an error on non-Linux platforms.
func OpenCdev(chipName string, specs []LineSpec) (*Board, error) {
	return nil, errUnsupported
}

// OpenPeriph returns an error on non-Linux platforms.
func OpenPeriph(specs []LineSpec) (*Board, error) {
	return nil, errUnsupported
}
