//go:build !linux

package transport

import "syscall"

// socketControl is a no-op on platforms without the Linux keepalive
// socket options; the TCP stack defaults apply.
func socketControl(network, address string, c syscall.RawConn) error {
	return nil
}
