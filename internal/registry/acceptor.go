package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// Listener accepts inbound channels on one PSM. Accept returns an error
// matching os.ErrDeadlineExceeded when nothing arrived within timeout.
type Listener interface {
	Accept(timeout time.Duration) (conn io.WriteCloser, peer string, err error)
	Close() error
}

// Serve accepts incoming control/interrupt pairs until ctx is done and hands
// them to the matching client, creating one for unknown peers. Every round
// also reconciles the connected set. On return both listeners are closed and
// all sessions have been stopped and joined.
func (r *Registry) Serve(ctx context.Context, ctrlLn, intrLn Listener) error {
	r.logger.Info("Waiting for incoming connections")
	defer func() {
		r.logger.Info("Closing listening sockets")
		_ = ctrlLn.Close()
		_ = intrLn.Close()
		r.StopAll()
	}()

	for ctx.Err() == nil {
		r.Reconcile()

		ctrl, peer, err := ctrlLn.Accept(r.cfg.AcceptTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				r.logger.Warn("Accept on control channel failed", "error", err)
			}
			r.idle(ctx)
			continue
		}

		intr, intrPeer, err := intrLn.Accept(r.cfg.AcceptTimeout)
		if err != nil {
			_ = ctrl.Close()
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Info("No interrupt channel followed control channel", "addr", peer, "error", err)
			r.idle(ctx)
			continue
		}
		if normalize(intrPeer) != normalize(peer) {
			r.logger.Warn("Control and interrupt channel from different peers", "control", peer, "interrupt", intrPeer)
			_ = ctrl.Close()
			_ = intr.Close()
			continue
		}

		r.accept(peer, ctrl, intr)
	}
	return nil
}

func (r *Registry) accept(peer string, ctrl, intr io.WriteCloser) {
	c, ok := r.Get(peer)
	if !ok {
		if r.newClient == nil {
			_ = ctrl.Close()
			_ = intr.Close()
			return
		}
		c = r.newClient(normalize(peer))
		r.AddOrReplace(c)
	}
	r.logger.Info("Incoming connection", "client", c.Name(), "addr", c.Address())
	c.AcceptConnection(ctrl, intr)
}

func (r *Registry) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.cfg.IdleSleep):
	}
}
