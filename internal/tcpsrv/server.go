package tcpsrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imtcpd/imtcpd/internal/message"
	"github.com/imtcpd/imtcpd/internal/queue"
	"github.com/imtcpd/imtcpd/internal/ruleset"
	"github.com/imtcpd/imtcpd/internal/streamdriver"
)

// Metrics is the subset of observability hooks the server calls into. A
// nil Metrics is valid; every call site guards against it.
type Metrics interface {
	IncRejectedPeers()
	IncRejectedPeersFor(inputName string)
	IncFramingErrors()
	IncDroppedOnShutdown()
	IncSessionsAccepted()
	IncSessionsClosed()
	SetActiveSessions(n int)
}

// listenerInstance is a configured listener intent recorded by
// ConfigureListen and opened by ConstructFinalize.
type listenerInstance struct {
	bindAddr               string
	port                   int
	rulesetName            string
	rs                     *ruleset.Ruleset
	inputName              string
	octetFramingSupported  bool
}

// connSession pairs an accepted connection with its framing decoder.
type connSession struct {
	conn net.Conn
	sess *Session
	peer netip.Addr
}

// Server is the TCP server (C4): listener set, accept loop, session
// table, and the lifecycle callbacks the construction phases wire up.
//
// Construction proceeds in the documented phase order: NewServer
// (construct), the SetXxx methods (setCB*/set*), ConfigureListen
// (configureTCPListen) per declared instance, then ConstructFinalize,
// then Run.
type Server struct {
	driver   streamdriver.Driver
	registry *ruleset.Registry
	logger   *slog.Logger
	metrics  Metrics

	sessMax              int
	lstnMax              int
	keepAlive            bool
	notifyOnClose        bool
	addtlFrameDelimiter  int
	disableLFDelimiter   bool
	flowControl          bool
	maxFrameSize         int

	mu           sync.Mutex
	listeners    []*listenerInstance
	netListeners []net.Listener
	finalized    bool

	sessMu   sync.Mutex
	sessions map[*connSession]struct{}

	shutdownImmediate atomic.Bool

	// OnRegularClose and OnErrClose, when set, are called after a
	// session's socket has already been closed, for the caller's own
	// bookkeeping (e.g. admin API session removal).
	OnRegularClose func(peer netip.Addr)
	OnErrClose     func(peer netip.Addr, err error)
}

// NewServer constructs a Server with documented legacy defaults
// (sessMax=200, lstnMax=20, no additional frame delimiter, flow control
// off). Octet-counted framing support is set per listener by
// ConfigureListen.
func NewServer(driver streamdriver.Driver, registry *ruleset.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		driver:              driver,
		registry:            registry,
		logger:              logger,
		sessMax:             200,
		lstnMax:             20,
		addtlFrameDelimiter: -1,
		sessions:            make(map[*connSession]struct{}),
	}
}

func (s *Server) SetMetrics(m Metrics)         { s.metrics = m }
func (s *Server) SetSessMax(n int)             { s.sessMax = n }
func (s *Server) SetListenerMax(n int)         { s.lstnMax = n }
func (s *Server) SetKeepAlive(b bool)          { s.keepAlive = b }
func (s *Server) SetNotifyOnClose(b bool)      { s.notifyOnClose = b }
func (s *Server) SetAddtlFrameDelimiter(v int) { s.addtlFrameDelimiter = v }
func (s *Server) SetDisableLFDelimiter(b bool) { s.disableLFDelimiter = b }
func (s *Server) SetFlowControl(b bool)        { s.flowControl = b }
func (s *Server) SetMaxFrameSize(n int)        { s.maxFrameSize = n }

// ShutdownImmediate returns the flag shared with the ruleset dispatcher
// and worker pool so all three observe cooperative shutdown together.
func (s *Server) ShutdownImmediate() *atomic.Bool { return &s.shutdownImmediate }

// ConfigureListen records a listener declaration. The ruleset name is
// resolved against the registry immediately; an unresolved name falls
// back to the registry's default ruleset with a warning, per the
// listener-instance resolution rule.
func (s *Server) ConfigureListen(bindAddr string, port int, rulesetName, inputName string, octetFramingSupported bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return ErrAlreadyFinalized
	}
	if len(s.listeners) >= s.lstnMax {
		return ErrListenerCapExceeded
	}

	rs, err := s.registry.GetRuleset(rulesetName)
	if err != nil {
		s.logger.Warn("listener ruleset not found, falling back to default",
			slog.String("ruleset", rulesetName), slog.Int("port", port))
		rs = s.registry.GetDefault()
	}

	s.listeners = append(s.listeners, &listenerInstance{
		bindAddr:              bindAddr,
		port:                  port,
		rulesetName:           rulesetName,
		rs:                    rs,
		inputName:             inputName,
		octetFramingSupported: octetFramingSupported,
	})
	return nil
}

// ConstructFinalize opens every configured listener's socket via the
// driver. NO_LISTENERS is returned if ConfigureListen was never called.
func (s *Server) ConstructFinalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.listeners) == 0 {
		return ErrNoListeners
	}

	for _, li := range s.listeners {
		ln, err := s.driver.ListenInit(ctx, li.bindAddr, li.port, 128)
		if err != nil {
			return fmt.Errorf("tcpsrv: listen on %s:%d: %w", li.bindAddr, li.port, err)
		}
		s.netListeners = append(s.netListeners, ln)
	}
	s.finalized = true
	return nil
}

// Run enters the accept/read loop for every listener and blocks until ctx
// is cancelled or Shutdown is called. Accept errors other than a rejected
// peer are logged and the loop keeps accepting; they do not end Run.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	listeners := make([]net.Listener, len(s.netListeners))
	copy(listeners, s.netListeners)
	infos := make([]*listenerInstance, len(s.listeners))
	copy(infos, s.listeners)
	s.mu.Unlock()

	// Accept does not observe ctx, so closing the listeners is what wakes
	// a blocked accept loop once ctx is cancelled.
	go func() {
		<-ctx.Done()
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	for i := range listeners {
		ln := listeners[i]
		li := infos[i]
		g.Go(func() error {
			return s.acceptLoop(ctx, ln, li)
		})
	}
	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, li *listenerInstance) error {
	for {
		if s.shutdownImmediate.Load() || ctx.Err() != nil {
			return nil
		}

		conn, err := s.driver.Accept(ctx, ln)
		if err != nil {
			if errors.Is(err, streamdriver.ErrPeerRejected) {
				s.logger.Warn("rejected peer at accept")
				if s.metrics != nil {
					s.metrics.IncRejectedPeers()
					s.metrics.IncRejectedPeersFor(li.inputName)
				}
				continue
			}
			if s.shutdownImmediate.Load() || ctx.Err() != nil {
				return nil
			}
			s.logger.Error("accept failed", slog.Any("error", err))
			continue
		}

		if s.sessionCount() >= s.sessMax {
			s.logger.Warn("session cap exceeded, rejecting connection", slog.Int("sess_max", s.sessMax))
			conn.Close()
			continue
		}

		if s.keepAlive {
			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.SetKeepAlive(true)
			}
		}

		peer, _ := peerAddr(conn)
		mode := FramingLF
		if li.octetFramingSupported {
			mode = FramingAuto
		}
		cs := &connSession{
			conn: conn,
			sess: NewSession(peer, mode, s.addtlFrameDelimiter, s.disableLFDelimiter, s.maxFrameSize),
			peer: peer,
		}
		s.addSession(cs)
		if s.metrics != nil {
			s.metrics.IncSessionsAccepted()
			s.metrics.SetActiveSessions(s.sessionCount())
		}

		go s.handleConn(ctx, cs, li)
	}
}

func (s *Server) handleConn(ctx context.Context, cs *connSession, li *listenerInstance) {
	defer func() {
		s.removeSession(cs)
		if s.metrics != nil {
			s.metrics.IncSessionsClosed()
			s.metrics.SetActiveSessions(s.sessionCount())
		}
	}()

	buf := make([]byte, 8192)
	for {
		if s.shutdownImmediate.Load() {
			cs.sess.DropOnError()
			cs.conn.Close()
			return
		}

		s.waitForFlowControl(ctx, li)

		n, err := cs.conn.Read(buf)
		if n > 0 {
			if feedErr := cs.sess.Feed(buf[:n], func(frame []byte) { s.emit(ctx, cs, li, frame) }); feedErr != nil {
				s.logger.Warn("framing error, closing session",
					slog.String("peer", cs.peer.String()), slog.Any("error", feedErr))
				if s.metrics != nil {
					s.metrics.IncFramingErrors()
				}
				cs.sess.DropOnError()
				s.onErrClose(ctx, cs, li, feedErr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				cs.sess.PrepareClose(func(frame []byte) { s.emit(ctx, cs, li, frame) })
				s.onRegularClose(ctx, cs, li)
			} else {
				cs.sess.DropOnError()
				s.onErrClose(ctx, cs, li, err)
			}
			return
		}
	}
}

// waitForFlowControl blocks the session's read loop while its ruleset
// queue signals light-delayable backpressure and flow control is on, per
// the backpressure gate (§4.3): the session is effectively taken off the
// readable set until the queue drains below its resume threshold.
func (s *Server) waitForFlowControl(ctx context.Context, li *listenerInstance) {
	if !s.flowControl {
		return
	}
	q := s.registry.GetRulesetQueue(li.rs)
	if q == nil {
		return
	}
	for q.IsLightDelayable() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
		if s.shutdownImmediate.Load() {
			return
		}
	}
}

func (s *Server) emit(ctx context.Context, cs *connSession, li *listenerInstance, frame []byte) {
	msg := &message.Message{
		Raw:         frame,
		PeerAddr:    cs.peer,
		InputName:   li.inputName,
		Ruleset:     asMessageRuleset(li.rs),
		FlowControl: s.flowControl,
		ReceivedAt:  time.Now(),
	}

	q := s.registry.GetRulesetQueue(li.rs)
	if q == nil {
		s.logger.Warn("no queue available for ruleset, dropping message", slog.String("ruleset", li.rulesetName))
		return
	}

	if err := q.Enqueue(ctx, msg, s.flowControl, &s.shutdownImmediate); err != nil {
		if errors.Is(err, queue.ErrShutdownImmediate) {
			q.RecordDroppedOnShutdown()
			if s.metrics != nil {
				s.metrics.IncDroppedOnShutdown()
			}
			return
		}
		s.logger.Warn("enqueue failed", slog.Any("error", err))
	}
}

func (s *Server) onRegularClose(ctx context.Context, cs *connSession, li *listenerInstance) {
	s.emitCloseNotification(ctx, cs, li)
	cs.conn.Close()
	if s.OnRegularClose != nil {
		s.OnRegularClose(cs.peer)
	}
}

func (s *Server) onErrClose(ctx context.Context, cs *connSession, li *listenerInstance, cause error) {
	s.emitCloseNotification(ctx, cs, li)
	cs.conn.Close()
	if s.OnErrClose != nil {
		s.OnErrClose(cs.peer, cause)
	}
}

func (s *Server) emitCloseNotification(ctx context.Context, cs *connSession, li *listenerInstance) {
	if !s.notifyOnClose {
		return
	}
	q := s.registry.GetRulesetQueue(li.rs)
	if q == nil {
		return
	}
	msg := &message.Message{
		PeerAddr:   cs.peer,
		InputName:  li.inputName,
		Ruleset:    asMessageRuleset(li.rs),
		ReceivedAt: time.Now(),
		Synthetic:  true,
	}
	_ = q.Enqueue(ctx, msg, false, &s.shutdownImmediate)
}

// Shutdown aborts the accept loop, closes every listener, and closes
// every open session in parallel. It guarantees no message enqueued
// before shutdown is silently dropped: emit() either enqueues
// successfully or counts the message against DROPPED_ON_SHUTDOWN.
func (s *Server) Shutdown() {
	s.shutdownImmediate.Store(true)

	s.mu.Lock()
	for _, ln := range s.netListeners {
		ln.Close()
	}
	s.mu.Unlock()

	s.sessMu.Lock()
	sessions := make([]*connSession, 0, len(s.sessions))
	for cs := range s.sessions {
		sessions = append(sessions, cs)
	}
	s.sessMu.Unlock()

	var wg sync.WaitGroup
	for _, cs := range sessions {
		wg.Add(1)
		go func(cs *connSession) {
			defer wg.Done()
			cs.sess.DropOnError()
			cs.conn.Close()
		}(cs)
	}
	wg.Wait()
}

func (s *Server) addSession(cs *connSession) {
	s.sessMu.Lock()
	s.sessions[cs] = struct{}{}
	s.sessMu.Unlock()
}

func (s *Server) removeSession(cs *connSession) {
	s.sessMu.Lock()
	delete(s.sessions, cs)
	s.sessMu.Unlock()
}

func (s *Server) sessionCount() int {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return len(s.sessions)
}

// ActiveSessionCount reports the number of currently open sessions. Used
// by the admin introspection surface.
func (s *Server) ActiveSessionCount() int {
	return s.sessionCount()
}

func asMessageRuleset(rs *ruleset.Ruleset) message.Ruleset {
	if rs == nil {
		return nil
	}
	return rs
}

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
