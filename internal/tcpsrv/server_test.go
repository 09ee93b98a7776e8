package tcpsrv

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/imtcpd/imtcpd/internal/acl"
	"github.com/imtcpd/imtcpd/internal/message"
	"github.com/imtcpd/imtcpd/internal/queue"
	"github.com/imtcpd/imtcpd/internal/ruleset"
	"github.com/imtcpd/imtcpd/internal/streamdriver"
)

type recordingRule struct {
	mu   sync.Mutex
	tags []string
}

func (r *recordingRule) ProcessBatch(_ context.Context, batch *ruleset.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range batch.Slots {
		s := &batch.Slots[i]
		if s.State == ruleset.StateDisc {
			continue
		}
		r.tags = append(r.tags, string(s.Payload.Raw))
		s.State = ruleset.StateSub
	}
	return nil
}
func (r *recordingRule) IterateAllActions(context.Context, ruleset.ActionFunc) error { return nil }
func (r *recordingRule) ActionCount() int                                           { return 1 }

func (r *recordingRule) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.tags))
	copy(out, r.tags)
	return out
}

func buildTestServer(t *testing.T) (*Server, *ruleset.Registry, *queue.Queue, *recordingRule) {
	t.Helper()
	q := queue.New(queue.Policy{Capacity: 16})
	reg := ruleset.NewRegistry(nil)
	rs := ruleset.NewRuleset("R1")
	if err := reg.ConstructFinalize(rs); err != nil {
		t.Fatal(err)
	}
	if err := reg.AttachQueue(rs, q); err != nil {
		t.Fatal(err)
	}
	rule := &recordingRule{}
	if err := reg.AddRule(rs, rule); err != nil {
		t.Fatal(err)
	}

	driver := streamdriver.NewPlainDriver()
	srv := NewServer(driver, reg, nil)
	if err := srv.ConfigureListen("127.0.0.1", 0, "R1", "imtcp", false); err != nil {
		t.Fatal(err)
	}
	if err := srv.ConstructFinalize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return srv, reg, q, rule
}

func TestServer_SingleRulesetSinglePeer(t *testing.T) {
	srv, reg, q, rule := buildTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)
	defer srv.Shutdown()

	addr := srv.netListeners[0].Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("<14>msgA\n<14>msgB\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dispatcher := ruleset.NewDispatcher(reg, nil)
	rs, _ := reg.GetRuleset("R1")
	deadline := time.After(2 * time.Second)
	for {
		msg, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatalf("queue closed before both messages arrived")
		}
		batch := ruleset.NewSingleRulesetBatch(rs, []*message.Message{msg}, nil)
		if err := dispatcher.ProcessBatch(ctx, batch); err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		if len(rule.snapshot()) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for both messages, got %v", rule.snapshot())
		default:
		}
	}

	got := rule.snapshot()
	if got[0] != "<14>msgA" || got[1] != "<14>msgB" {
		t.Fatalf("got %v, want [<14>msgA <14>msgB] in order", got)
	}
}

func TestServer_ACLRejectsPeer(t *testing.T) {
	q := queue.New(queue.Policy{Capacity: 4})
	reg := ruleset.NewRegistry(nil)
	rs := ruleset.NewRuleset("R1")
	if err := reg.ConstructFinalize(rs); err != nil {
		t.Fatal(err)
	}
	if err := reg.AttachQueue(rs, q); err != nil {
		t.Fatal(err)
	}

	driver := streamdriver.NewPlainDriver()
	// 127.0.0.1 will dial in, but only a disjoint address is permitted,
	// so every connection must be rejected before a session exists.
	driver.SetPermittedPeers(acl.NewList([]string{"10.0.0.*"}))

	srv := NewServer(driver, reg, nil)
	if err := srv.ConfigureListen("127.0.0.1", 0, "R1", "imtcp", false); err != nil {
		t.Fatal(err)
	}
	if err := srv.ConstructFinalize(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)
	defer srv.Shutdown()

	addr := srv.netListeners[0].Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("rejected peer should see the connection closed with no data, got n=%d err=%v", n, err)
	}
	if srv.ActiveSessionCount() != 0 {
		t.Fatalf("ActiveSessionCount = %d, want 0: no session should be created for a rejected peer", srv.ActiveSessionCount())
	}
}
