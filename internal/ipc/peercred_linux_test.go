//go:build linux

package ipc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizePeerSameUser(t *testing.T) {
	ln, err := net.Listen("unix", filepath.Join(t.TempDir(), "peer.sock"))
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
		close(accepted)
	}()

	client, err := net.Dial("unix", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	server, ok := <-accepted
	require.True(t, ok)
	defer server.Close()

	assert.NoError(t, authorizePeer(server))
	assert.NoError(t, authorizePeer(client))
}

func TestAuthorizePeerNeedsSocket(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	assert.ErrorIs(t, authorizePeer(a), ErrPeerRejected)
}
