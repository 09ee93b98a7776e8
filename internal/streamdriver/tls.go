package streamdriver

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/imtcpd/imtcpd/internal/acl"
)

// TLSDriver is the encrypted variant. Accept completes the TLS handshake
// eagerly (rather than letting it happen lazily on first Read) so peer
// identity — the client certificate's subject common name, checked
// against the permitted peers whenever those are set and authMode is
// non-empty — can be validated before the caller
// ever sees a usable stream. SAN entries are not consulted.
type TLSDriver struct {
	mode           Mode
	authMode       string
	permittedPeers *acl.List
	acl            *acl.ACL
	aclCacheSize   int

	Config *tls.Config
}

// NewTLSDriver builds a TLSDriver. cfg must have at least Certificates
// set for server use; cfg.ClientAuth controls whether a client
// certificate is required.
func NewTLSDriver(cfg *tls.Config) *TLSDriver {
	return &TLSDriver{Config: cfg}
}

func (d *TLSDriver) SetMode(m Mode)      { d.mode = m }
func (d *TLSDriver) SetAuthMode(s string) { d.authMode = s }

func (d *TLSDriver) SetACLCacheSize(n int) { d.aclCacheSize = n }

func (d *TLSDriver) SetPermittedPeers(list *acl.List) {
	d.permittedPeers = list
	if list == nil {
		d.acl = nil
		return
	}
	d.acl = acl.New(list, d.aclCacheSize)
}

func (d *TLSDriver) ListenInit(ctx context.Context, bindAddr string, port int, backlog int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", listenAddress(bindAddr, port))
	if err != nil {
		return nil, err
	}
	return tls.NewListener(ln, d.Config), nil
}

func (d *TLSDriver) Accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return nil, ErrPeerRejected
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		return nil, err
	}

	if d.acl == nil || d.authMode == "" {
		return tlsConn, nil
	}

	identity := peerIdentity(tlsConn)
	addr, ok := peerAddr(tlsConn)
	family := acl.FamilyUnknown
	if ok {
		family = acl.FamilyOf(addr)
	}
	if !d.acl.IsAllowed(family, addr, identity, true) {
		tlsConn.Close()
		return nil, ErrPeerRejected
	}
	return tlsConn, nil
}

// peerIdentity extracts the client certificate's common name, used as
// the FQDN argument to the ACL whenever authMode is non-empty. Returns ""
// when no client certificate was presented.
func peerIdentity(conn *tls.Conn) string {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}
