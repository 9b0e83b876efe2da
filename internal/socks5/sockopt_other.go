//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package socks5

import "errors"

func setSockOpts(_ uintptr, reusePort bool) error {
	if reusePort {
		return errors.New("SO_REUSEPORT is not supported on this platform")
	}
	return nil
}
