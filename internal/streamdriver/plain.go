package streamdriver

import (
	"context"
	"net"

	"github.com/imtcpd/imtcpd/internal/acl"
)

// PlainDriver is the unencrypted TCP variant: listenInit/accept wrap
// net.Listen directly, with peer validation performed against the ACL
// immediately after accept and before the connection is handed back.
type PlainDriver struct {
	mode           Mode
	authMode       string
	permittedPeers *acl.List
	acl            *acl.ACL
	aclCacheSize   int
}

// NewPlainDriver builds a PlainDriver with no permitted-peer restriction
// configured yet.
func NewPlainDriver() *PlainDriver {
	return &PlainDriver{}
}

func (d *PlainDriver) SetMode(m Mode)      { d.mode = m }
func (d *PlainDriver) SetAuthMode(s string) { d.authMode = s }

func (d *PlainDriver) SetACLCacheSize(n int) { d.aclCacheSize = n }

func (d *PlainDriver) SetPermittedPeers(list *acl.List) {
	d.permittedPeers = list
	if list == nil {
		d.acl = nil
		return
	}
	d.acl = acl.New(list, d.aclCacheSize)
}

func (d *PlainDriver) ListenInit(ctx context.Context, bindAddr string, port int, backlog int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", listenAddress(bindAddr, port))
}

func (d *PlainDriver) Accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}

	if d.acl == nil {
		return conn, nil
	}

	addr, ok := peerAddr(conn)
	family := acl.FamilyUnknown
	if ok {
		family = acl.FamilyOf(addr)
	}
	if !d.acl.IsAllowed(family, addr, "", true) {
		conn.Close()
		return nil, ErrPeerRejected
	}
	return conn, nil
}
