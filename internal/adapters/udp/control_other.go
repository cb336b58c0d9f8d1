//go:build !unix

package udp

import "syscall"

// enableBroadcast is a no-op on platforms without the unix sockopt API;
// unicast targets still work.
func enableBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
