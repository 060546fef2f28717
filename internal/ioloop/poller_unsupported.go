//go:build !linux && !windows

package ioloop

import "errors"

func newPoller() (Poller, error) {
	return nil, errors.New("ioloop: no poller backend for this platform")
}
