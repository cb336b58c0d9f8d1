//go:build unix

package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// enableBroadcast flags the socket for subnet broadcast destinations.
func enableBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
