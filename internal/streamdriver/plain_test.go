package streamdriver

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/imtcpd/imtcpd/internal/acl"
)

func TestPlainDriver_AcceptNoACL(t *testing.T) {
	d := NewPlainDriver()
	ctx := context.Background()
	ln, err := d.ListenInit(ctx, "127.0.0.1", 0, 16)
	if err != nil {
		t.Fatalf("ListenInit: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			c.Close()
		}
	}()

	conn, err := d.Accept(ctx, ln)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	conn.Close()
}

func TestPlainDriver_AcceptRejectsUnlistedPeer(t *testing.T) {
	d := NewPlainDriver()
	// 127.0.0.1 will dial in, but the permitted-peer list only allows a
	// different address, so every connection must be rejected.
	d.SetPermittedPeers(acl.NewList([]string{"10.0.0.*"}))

	ctx := context.Background()
	ln, err := d.ListenInit(ctx, "127.0.0.1", 0, 16)
	if err != nil {
		t.Fatalf("ListenInit: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			c.Close()
		}
	}()

	_, err = d.Accept(ctx, ln)
	if !errors.Is(err, ErrPeerRejected) {
		t.Fatalf("Accept error = %v, want ErrPeerRejected", err)
	}
}
