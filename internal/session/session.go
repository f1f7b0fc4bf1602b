// Package session manages the Bluetooth HID link to one remote host.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Alia5/btkvm/hid"
	"github.com/Alia5/btkvm/internal/log"
)

// Session owns the control/interrupt channel pair of one peer, keeps the
// local side link master, probes liveness, and drains queued reports onto
// the interrupt channel in FIFO order.
type Session struct {
	addr      string
	cfg       Config
	dialer    Dialer
	link      LinkController
	resolver  NameResolver
	logger    *slog.Logger
	rawLogger log.RawLogger

	queue *queue

	mu     sync.Mutex
	name   string
	state  State
	armed  bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Options carries the collaborators of a Session. Nil fields are tolerated:
// without a Dialer Connect fails immediately, without a LinkController the
// role is left alone, without a NameResolver the address doubles as name.
type Options struct {
	Dialer    Dialer
	Link      LinkController
	Resolver  NameResolver
	Logger    *slog.Logger
	RawLogger log.RawLogger
}

// New creates an idle session for addr.
func New(addr string, cfg Config, o Options) *Session {
	cfg = cfg.withDefaults()
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	raw := o.RawLogger
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Session{
		addr:      strings.ToUpper(addr),
		cfg:       cfg,
		dialer:    o.Dialer,
		link:      o.Link,
		resolver:  o.Resolver,
		logger:    logger,
		rawLogger: raw,
		queue:     newQueue(cfg.QueueCapacity),
		state:     NotConnected,
	}
}

// Address returns the peer's Bluetooth address, upper case.
func (s *Session) Address() string { return s.addr }

// Name returns the resolved device name, or the address until one is known.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		return s.addr
	}
	return s.name
}

// SetName overrides the display name.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the link is up right now.
func (s *Session) IsConnected() bool { return s.State() == Connected }

// IsAlive reports whether a run loop exists and has not finished.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// Pending returns the number of queued reports.
func (s *Session) Pending() int { return s.queue.len() }

func (s *Session) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Session) log() *slog.Logger {
	return s.logger.With("client", s.Name(), "addr", s.addr)
}

// Connect dials the peer in the background. It is a no-op while a run loop
// is active and reports whether a new loop was started.
func (s *Session) Connect() bool {
	return s.start(nil, nil)
}

// AcceptConnection hands an already accepted channel pair to the session.
// If a run loop is already active the channels are closed and false is returned.
func (s *Session) AcceptConnection(ctrl, intr io.WriteCloser) bool {
	if ctrl == nil || intr == nil {
		closeAll(ctrl, intr)
		return false
	}
	if !s.start(ctrl, intr) {
		s.log().Info("Session busy, dropping incoming connection")
		closeAll(ctrl, intr)
		return false
	}
	return true
}

func (s *Session) start(ctrl, intr io.WriteCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Connecting
	go s.run(ctx, ctrl, intr, s.done)
	return true
}

// Stop asks the run loop to exit and disarms Send. It does not wait.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.runningLocked() {
		s.state = Terminating
	}
}

// Join blocks until the current run loop, if any, has exited.
func (s *Session) Join() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Send queues a report for the interrupt channel. Reports are dropped while
// the session has not connected since the last Stop.
func (s *Session) Send(report []byte) {
	s.mu.Lock()
	armed := s.armed
	s.mu.Unlock()
	if !armed {
		return
	}
	s.enqueue(report)
}

func (s *Session) enqueue(report []byte) {
	msg := make([]byte, len(report))
	copy(msg, report)
	if s.queue.push(msg) {
		s.logger.Debug("Send queue full, dropped oldest report", "addr", s.addr)
	}
}

// ResolveName looks the device name up until it succeeds or ctx ends.
func (s *Session) ResolveName(ctx context.Context) {
	if s.resolver == nil {
		return
	}
	for {
		name, err := s.resolver.ResolveName(ctx, s.addr)
		if err == nil && name != "" {
			s.SetName(name)
			s.logger.Debug("Resolved client name", "addr", s.addr, "name", name)
			return
		}
		s.logger.Debug("Name lookup failed, retrying", "addr", s.addr, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.NameRetry):
		}
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) run(ctx context.Context, ctrl, intr io.WriteCloser, done chan struct{}) {
	defer close(done)
	logger := s.log()

	if ctrl == nil {
		var err error
		logger.Debug("Connecting")
		ctrl, intr, err = s.dial(ctx)
		if err != nil {
			logger.Info("Connect failed", "error", err)
			s.setState(NotConnected)
			return
		}
	} else {
		logger.Debug("Incoming connection")
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.state = NotConnected
		s.mu.Unlock()
		closeAll(intr, ctrl)
		return
	}
	s.state = Connected
	s.armed = true
	s.queue.reset()
	s.mu.Unlock()
	logger.Info("Connection established")

	linkCtx, stopLink := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.ensureMaster(linkCtx, logger)
	}()
	go func() {
		defer wg.Done()
		s.keepAlive(linkCtx)
	}()

	err := s.sendLoop(ctx, intr)
	stopLink()
	closeAll(intr, ctrl)
	wg.Wait()
	s.setState(NotConnected)

	switch {
	case err == nil:
		logger.Info("Connection closed")
	case IsDisconnect(err):
		logger.Info("Connection lost", "error", err)
	default:
		logger.Error("Connection failed", "error", err)
	}
}

func (s *Session) dial(ctx context.Context) (ctrl, intr io.WriteCloser, err error) {
	if s.dialer == nil {
		return nil, nil, errors.New("no dialer configured")
	}
	ctrl, err = s.dialer.Dial(ctx, s.addr, PSMControl)
	if err != nil {
		return nil, nil, fmt.Errorf("control channel: %w", err)
	}
	intr, err = s.dialer.Dial(ctx, s.addr, PSMInterrupt)
	if err != nil {
		_ = ctrl.Close()
		return nil, nil, fmt.Errorf("interrupt channel: %w", err)
	}
	return ctrl, intr, nil
}

// sendLoop is the only place a Connected session leaves that state.
func (s *Session) sendLoop(ctx context.Context, intr io.Writer) error {
	for {
		msg, ok := s.queue.pop(ctx, s.cfg.SendWait)
		if ctx.Err() != nil {
			return nil
		}
		if !ok {
			continue
		}
		s.rawLogger.Log(s.addr, false, msg)
		if _, err := intr.Write(msg); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
}

func (s *Session) ensureMaster(ctx context.Context, logger *slog.Logger) {
	if s.link == nil {
		return
	}
	for {
		role, err := s.link.LinkRole(ctx, s.addr)
		if err != nil {
			logger.Debug("Link role query failed", "error", err)
		}
		if role == RoleMaster {
			logger.Info("Link role", "role", role)
			return
		}
		if err := s.link.SwitchToMaster(ctx, s.addr); err != nil && ctx.Err() == nil {
			logger.Debug("Role switch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RoleRetry):
		}
	}
}

func (s *Session) keepAlive(ctx context.Context) {
	t := time.NewTicker(s.cfg.KeepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.enqueue(hid.KeepAliveReport())
		}
	}
}

func closeAll(cs ...io.Closer) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}

// IsDisconnect reports whether err is the peer going away rather than a local fault.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.EPIPE, syscall.ENOTCONN, syscall.EHOSTDOWN,
			syscall.ECONNREFUSED, syscall.ETIMEDOUT, syscall.EHOSTUNREACH, syscall.ECONNABORTED:
			return true
		}
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") || strings.Contains(e, "broken pipe")
}
