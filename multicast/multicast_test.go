package multicast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsNonMulticastAddress(t *testing.T) {
	_, err := Open(Config{Direction: Input, Addr: "127.0.0.1:5004"})
	require.Error(t, err)
}

func TestOpenRejectsUnresolvableAddress(t *testing.T) {
	_, err := Open(Config{Direction: Input, Addr: "not a valid address"})
	require.Error(t, err)
}

func TestOpenInputJoinsIPv4Group(t *testing.T) {
	sock, err := Open(Config{Direction: Input, Addr: "239.1.2.3:5004"})
	if err != nil {
		t.Skipf("multicast join not permitted in this sandbox: %v", err)
	}
	require.NotNil(t, sock)
	defer sock.Conn.Close()
	assert.True(t, sock.Addr.IP.IsMulticast())
}

func TestOpenOutputConnectsAndSetsTTL(t *testing.T) {
	sock, err := Open(Config{Direction: Output, Addr: "239.1.2.3:5004", TTL: 8})
	if err != nil {
		t.Skipf("multicast dial not permitted in this sandbox: %v", err)
	}
	require.NotNil(t, sock)
	defer sock.Conn.Close()
}
