package socks5

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// Listen opens the proxy's TCP listener. SO_REUSEADDR is always set where the
// platform supports it; SO_REUSEPORT only when reusePort is true.
func Listen(ctx context.Context, address string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, address string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = setSockOpts(fd, reusePort)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}

	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", address, err)
	}
	return ln, nil
}
