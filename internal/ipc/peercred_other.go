//go:build !linux

package ipc

import "net"

// authorizePeer relies on the 0600 socket mode where SO_PEERCRED is
// unavailable.
func authorizePeer(conn net.Conn) error {
	return nil
}
