//go:build linux

package ipc

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// authorizePeer reads the peer's SO_PEERCRED and accepts it only when it
// runs as the daemon's user.
func authorizePeer(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("%w: %T has no socket", ErrPeerRejected, conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("peer socket: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return fmt.Errorf("peer socket: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("SO_PEERCRED: %w", credErr)
	}

	if int(cred.Uid) != os.Getuid() {
		return fmt.Errorf("%w: pid %d runs as uid %d", ErrPeerRejected, cred.Pid, cred.Uid)
	}
	return nil
}
