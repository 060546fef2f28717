//go:build !linux && !windows

package ioloop

import "errors"

func newTCPSocket() (RawSocket, error) {
	return nil, errors.New("ioloop: no raw socket backend for this platform")
}
