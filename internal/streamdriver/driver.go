// Package streamdriver provides the pluggable byte-stream abstraction a
// TCP server listens and accepts through: a plain variant and a TLS
// variant, both validating peer identity against a permitted-peer list
// before a usable stream is handed back to the caller.
package streamdriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/imtcpd/imtcpd/internal/acl"
)

// Mode selects which driver variant a listener uses.
type Mode int

const (
	ModePlain Mode = iota
	ModeTLS
)

// ErrPeerRejected is returned by Accept when the connecting peer failed
// permitted-peer validation. The caller (C4) logs this as a rejected
// peer; it must never propagate to rule processing.
var ErrPeerRejected = errors.New("streamdriver: peer rejected")

// Driver is the contract C4 drives a listener through: construct-time
// setters, then ListenInit once, then Accept repeatedly.
type Driver interface {
	// SetMode records which variant this driver instance behaves as.
	// Plain and TLS drivers both implement Driver; SetMode is here so a
	// single configured instance can be swapped without the caller
	// knowing the concrete type, mirroring the source's dispatch-table
	// variant selection.
	SetMode(Mode)

	// SetAuthMode records the peer-auth mode string (TLS driver: e.g.
	// "x509/name"; plain driver: ignored).
	SetAuthMode(string)

	// SetPermittedPeers installs the immutable permitted-peer snapshot
	// consulted by Accept.
	SetPermittedPeers(*acl.List)

	// SetACLCacheSize bounds the verdict cache the driver's ACL uses to
	// amortize repeat connections from the same peer. Zero disables
	// caching. Must be called before SetPermittedPeers to take effect.
	SetACLCacheSize(int)

	// ListenInit opens the listening socket.
	ListenInit(ctx context.Context, bindAddr string, port int, backlog int) (net.Listener, error)

	// Accept blocks for the next connection on ln, validates the peer,
	// and returns a usable net.Conn, or ErrPeerRejected if validation
	// failed (the connection is already closed in that case).
	Accept(ctx context.Context, ln net.Listener) (net.Conn, error)
}

// peerAddr extracts a netip.Addr from a net.Conn's remote address.
func peerAddr(conn net.Conn) (netip.Addr, bool) {
	ap, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		addr, err := netip.ParseAddrPort(conn.RemoteAddr().String())
		if err != nil {
			return netip.Addr{}, false
		}
		return addr.Addr(), true
	}
	addr, ok := netip.AddrFromSlice(ap.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func listenAddress(bindAddr string, port int) string {
	if bindAddr == "" {
		bindAddr = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", bindAddr, port)
}
