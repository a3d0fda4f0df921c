package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	keepaliveIdleSecs     = 5
	keepaliveIntervalSecs = 5
	keepaliveProbes       = 3
)

// socketControl tunes a freshly created socket before connect: large
// send/receive buffers, Nagle off and aggressive keepalive probing so
// dead peers surface quickly.
func socketControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		s := int(fd)
		// Kernel caps these at net.core.rmem_max / wmem_max.
		if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUF, SocketBufferSize); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_SNDBUF, SocketBufferSize); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, keepaliveIdleSecs); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, keepaliveIntervalSecs); err != nil {
			sockErr = err
			return
		}
		if err := unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepaliveProbes); err != nil {
			sockErr = err
			return
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
